package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

var baseEnv = map[string]string{
	"DATABASE_URL": "mongodb://localhost:27017",
	"AUTH_URL":     "http://localhost:3001/api/v1",
	"JWT_SECRET":   "s3cret",
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndDeploymentEnv(t *testing.T) {
	cfg, err := NewLoader().WithEnv(envMap(baseEnv)).Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":3000", cfg.Server.BindAddress)
	assert.Equal(t, "/graphql", cfg.Server.Path)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URL)
	assert.Equal(t, "postgraph", cfg.Mongo.Database)
	assert.Equal(t, "http://localhost:3001/api/v1", cfg.UserService.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)

	assert.Equal(t, time.Second, cfg.RateLimit.Window())
	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 30*time.Second, cfg.AuthorCache.TTL())
	assert.False(t, cfg.NATS.Enabled())
	assert.False(t, cfg.UsesMemoryStore())
}

func TestLoad_RequiredSettings(t *testing.T) {
	for _, missing := range []string{"DATABASE_URL", "AUTH_URL", "JWT_SECRET"} {
		t.Run(missing, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range baseEnv {
				if k != missing {
					env[k] = v
				}
			}
			_, err := NewLoader().WithEnv(envMap(env)).Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_PortAndEnvironment(t *testing.T) {
	env := map[string]string{"PORT": "4000", "NODE_ENV": "production"}
	for k, v := range baseEnv {
		env[k] = v
	}

	cfg, err := NewLoader().WithEnv(envMap(env)).Load()
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.BindAddress)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.True(t, cfg.Server.Production)

	env["PORT"] = "http"
	_, err = NewLoader().WithEnv(envMap(env)).Load()
	assert.Error(t, err)

	env["PORT"] = "4000"
	env["NODE_ENV"] = "staging"
	_, err = NewLoader().WithEnv(envMap(env)).Load()
	assert.Error(t, err)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "postgraph.json", `{
  "server": {"bind_address": ":8080", "enable_playground": false, "max_query_depth": 6},
  "rate_limit": {"window": "2s", "max": 3},
  "author_cache": {"ttl": "0"},
  "nats": {"url": "nats://localhost:4222"}
}`)

	cfg, err := NewLoader().WithFile(path).WithEnv(envMap(baseEnv)).Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.BindAddress)
	assert.False(t, cfg.Server.EnablePlayground)
	assert.Equal(t, 6, cfg.Server.MaxQueryDepth)
	assert.Equal(t, "/graphql", cfg.Server.Path, "absent keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.RateLimit.Window())
	assert.Equal(t, 3, cfg.RateLimit.Max)
	assert.Equal(t, time.Duration(0), cfg.AuthorCache.TTL())
	assert.True(t, cfg.NATS.Enabled())
	assert.Equal(t, "POSTGRAPH_EVENTS", cfg.NATS.Events.Stream)
}

func TestLoad_YAMLFileAndPrecedence(t *testing.T) {
	path := writeFile(t, "postgraph.yaml", `
environment: development
mongo:
  url: mongodb://file-host:27017
  database: blog
rate_limit:
  backend: redis
  redis_url: redis://cache:6379/0
log:
  level: debug
  format: json
`)

	env := map[string]string{"POSTGRAPH_RATE_LIMIT_MAX": "9"}
	for k, v := range baseEnv {
		env[k] = v
	}
	delete(env, "DATABASE_URL")

	cfg, err := NewLoader().WithFile(path).WithEnv(envMap(env)).Load()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://file-host:27017", cfg.Mongo.URL)
	assert.Equal(t, "blog", cfg.Mongo.Database)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 9, cfg.RateLimit.Max)
	assert.Equal(t, "json", cfg.Log.Format)

	env["DATABASE_URL"] = "mongodb://env-host:27017"
	cfg, err = NewLoader().WithFile(path).WithEnv(envMap(env)).Load()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://env-host:27017", cfg.Mongo.URL, "environment wins over file")
}

func TestLoad_FileErrors(t *testing.T) {
	loader := func(path string) *Loader { return NewLoader().WithFile(path).WithEnv(envMap(baseEnv)) }

	_, err := loader(filepath.Join(t.TempDir(), "missing.json")).Load()
	assert.Error(t, err)

	_, err = loader(writeFile(t, "config.toml", `a = 1`)).Load()
	assert.Error(t, err)

	_, err = loader(writeFile(t, "broken.json", `{"server": `)).Load()
	assert.Error(t, err)

	_, err = loader(writeFile(t, "bad.json", `{"rate_limit": {"backend": "memcached"}}`)).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = "s"
		cfg.Mongo.URL = MemoryStoreURL
		cfg.UserService.URL = "http://users:3001"
		return cfg
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.UsesMemoryStore())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative user service url", func(c *Config) { c.UserService.URL = "users:3001" }},
		{"negative cache ttl", func(c *Config) { c.AuthorCache.TTLStr = "-1s" }},
		{"bad health interval", func(c *Config) { c.Health.IntervalStr = "soon" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"redis without url", func(c *Config) { c.RateLimit.Backend = "redis" }},
		{"bad nats events", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.Events.MaxAgeStr = "forever" }},
		{"bad server path", func(c *Config) { c.Server.Path = "graphql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "super-secret"
	cfg.Mongo.URL = "mongodb://admin:hunter2@db:27017"
	cfg.NATS.Token = "nats-token"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "nats-token")
	assert.Contains(t, out, "db:27017")
}

func TestEnvRejectsNullBytes(t *testing.T) {
	env := map[string]string{"JWT_SECRET": "a\x00b"}
	_, err := NewLoader().WithEnv(envMap(env)).EnableValidation(false).Load()
	assert.Error(t, err)
}
