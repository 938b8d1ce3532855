//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/postgraph/events"
	"github.com/c360/postgraph/natsclient"
	"github.com/c360/postgraph/testutil"
)

func TestIntegration_JetStreamPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := testutil.StartNATS(t, ctx)

	client, err := natsclient.NewClient(url)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(context.Background())

	cfg := events.Config{}
	require.NoError(t, cfg.Validate())

	pub, err := events.NewJetStreamPublisher(ctx, client, cfg, nil, nil)
	require.NoError(t, err)

	// A second publisher must reuse the existing stream
	_, err = events.NewJetStreamPublisher(ctx, client, cfg, nil, nil)
	require.NoError(t, err)

	event := events.New(events.PostLiked, "u1", "p1", nil)
	require.NoError(t, pub.Publish(ctx, event))

	js, err := client.JetStream()
	require.NoError(t, err)
	stream, err := js.Stream(ctx, cfg.Stream)
	require.NoError(t, err)

	msg, err := stream.GetLastMsgForSubject(ctx, pub.Subject(events.PostLiked))
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, natsclient.StateConnected, client.Status())
}
