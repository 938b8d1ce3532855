//go:build integration

package mongostore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/postgraph/storage"
	"github.com/c360/postgraph/storage/storagetest"
	"github.com/c360/postgraph/testutil"
)

func TestIntegration_Conformance(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := testutil.StartMongo(t, ctx)

	n := 0
	storagetest.Run(t, func(t *testing.T) storage.PostStore {
		n++
		cfg := Config{URL: url, Database: "postgraph_test", Collection: fmt.Sprintf("posts_%d", n)}
		require.NoError(t, cfg.Validate())

		s, err := Connect(ctx, cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.collection.Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}
