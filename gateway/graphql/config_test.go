package graphql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := Config{EnableCORS: true}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":3000", cfg.BindAddress)
	assert.Equal(t, "/graphql", cfg.Path)
	assert.Equal(t, 10, cfg.MaxQueryDepth)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"relative path", Config{Path: "graphql"}},
		{"bad timeout", Config{TimeoutStr: "soon"}},
		{"timeout too short", Config{TimeoutStr: "10ms"}},
		{"timeout too long", Config{TimeoutStr: "1h"}},
		{"depth too deep", Config{MaxQueryDepth: 51}},
		{"negative depth", Config{MaxQueryDepth: -1}},
		{"bad trusted proxy", Config{TrustedProxies: []string{"lb.internal"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.EnablePlayground)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
}
