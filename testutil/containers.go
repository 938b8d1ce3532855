//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startContainer starts image, waits with strategy and returns host:mappedPort.
// The container is terminated when the test ends.
func startContainer(t *testing.T, ctx context.Context, image, port string, strategy wait.Strategy) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port + "/tcp"},
			WaitingFor:   strategy,
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// StartMongo starts a MongoDB container and returns its connection URL
func StartMongo(t *testing.T, ctx context.Context) string {
	addr := startContainer(t, ctx, "mongo:7", "27017", wait.ForLog("Waiting for connections"))
	return "mongodb://" + addr
}

// StartRedis starts a Redis container and returns its connection URL
func StartRedis(t *testing.T, ctx context.Context) string {
	addr := startContainer(t, ctx, "redis:7-alpine", "6379", wait.ForLog("Ready to accept connections"))
	return "redis://" + addr + "/0"
}

// StartNATS starts a NATS server with JetStream enabled and returns its URL
func StartNATS(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}
