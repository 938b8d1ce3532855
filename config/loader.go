package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/postgraph/errors"
)

const (
	maxConfigSize = 1 << 20
	maxEnvVarLen  = 10000
	envPrefix     = "POSTGRAPH"
)

// Loader builds a Config from defaults, an optional file, and the environment
type Loader struct {
	path       string
	validation bool
	getenv     func(string) string
}

// NewLoader creates a loader reading the process environment
func NewLoader() *Loader {
	return &Loader{validation: true, getenv: os.Getenv}
}

// WithFile layers a JSON or YAML file over the defaults
func (l *Loader) WithFile(path string) *Loader {
	l.path = path
	return l
}

// WithEnv replaces the environment lookup
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// EnableValidation enables or disables the final Validate
func (l *Loader) EnableValidation(enable bool) *Loader {
	l.validation = enable
	return l
}

// Load returns the merged configuration. Precedence, lowest first: defaults,
// file, environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadFile decodes the file over cfg, so absent keys keep their defaults
func (l *Loader) loadFile(cfg *Config) error {
	data, err := readConfigFile(l.path)
	if err != nil {
		return errors.WrapInvalid(err, "Loader", "Load", "read config file")
	}

	switch strings.ToLower(filepath.Ext(l.path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return errors.WrapInvalid(errors.ErrParsingFailed, "Loader", "Load",
			fmt.Sprintf("parse %s: %v", l.path, err))
	}
	return nil
}

// applyEnv applies the deployment variables, then POSTGRAPH_* overrides
func (l *Loader) applyEnv(cfg *Config) error {
	get := func(key string) (string, bool, error) {
		val := l.getenv(key)
		if val == "" {
			return "", false, nil
		}
		if len(val) > maxEnvVarLen || strings.ContainsRune(val, 0) {
			return "", false, errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnv",
				fmt.Sprintf("invalid value for %s", key))
		}
		return val, true, nil
	}

	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"DATABASE_URL", envPrefix + "_MONGO_URL"}, &cfg.Mongo.URL},
		{[]string{envPrefix + "_MONGO_DATABASE"}, &cfg.Mongo.Database},
		{[]string{"AUTH_URL", envPrefix + "_USER_SERVICE_URL"}, &cfg.UserService.URL},
		{[]string{"JWT_SECRET", envPrefix + "_JWT_SECRET"}, &cfg.Auth.JWTSecret},
		{[]string{"NODE_ENV", envPrefix + "_ENV"}, &cfg.Environment},
		{[]string{"NATS_URL", envPrefix + "_NATS_URL"}, &cfg.NATS.URL},
		{[]string{envPrefix + "_NATS_TOKEN"}, &cfg.NATS.Token},
		{[]string{"REDIS_URL", envPrefix + "_RATE_LIMIT_REDIS_URL"}, &cfg.RateLimit.RedisURL},
		{[]string{envPrefix + "_RATE_LIMIT_BACKEND"}, &cfg.RateLimit.Backend},
		{[]string{envPrefix + "_RATE_LIMIT_WINDOW"}, &cfg.RateLimit.WindowStr},
		{[]string{envPrefix + "_AUTHOR_CACHE_TTL"}, &cfg.AuthorCache.TTLStr},
		{[]string{envPrefix + "_LOG_LEVEL"}, &cfg.Log.Level},
		{[]string{envPrefix + "_LOG_FORMAT"}, &cfg.Log.Format},
	}
	for _, s := range strs {
		for _, key := range s.keys {
			val, ok, err := get(key)
			if err != nil {
				return err
			}
			if ok {
				*s.dst = val
			}
		}
	}

	port, ok, err := get("PORT")
	if err != nil {
		return err
	}
	if ok {
		if _, err := strconv.Atoi(port); err != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnv",
				fmt.Sprintf("PORT must be numeric: %s", port))
		}
		cfg.Server.BindAddress = ":" + port
	}

	proxies, ok, err := get(envPrefix + "_TRUSTED_PROXIES")
	if err != nil {
		return err
	}
	if ok {
		cfg.Server.TrustedProxies = strings.Split(proxies, ",")
	}

	maxCalls, ok, err := get(envPrefix + "_RATE_LIMIT_MAX")
	if err != nil {
		return err
	}
	if ok {
		n, err := strconv.Atoi(maxCalls)
		if err != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnv",
				fmt.Sprintf("%s_RATE_LIMIT_MAX must be numeric: %s", envPrefix, maxCalls))
		}
		cfg.RateLimit.Max = n
	}
	return nil
}

// readConfigFile reads a regular JSON or YAML file of bounded size
func readConfigFile(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported config file type: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	return os.ReadFile(filepath.Clean(path))
}

// redactURL hides credentials in a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("redacted")
	return u.String()
}
