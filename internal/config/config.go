// Package config loads the environment-variable inputs the core
// synchronization engine is handed as plain parameters. The core
// packages (restclient, paginator, memoizer, subscriber, index,
// pipeline) never read the environment themselves; only this
// collaborator layer does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is every environment-derived input the engine needs to start.
type Config struct {
	// APIToken authenticates both the REST client and the Subscriber.
	APIToken string
	// Username constrains __world__ searches.
	Username string
	// Group is the single group this instance is bound to.
	Group string
	// Domain is the Hypothes.is host, default "hypothes.is".
	Domain string
	// CacheDir holds the cache file and its lock folder.
	CacheDir string
	// StatusAddr, if set, turns on the read-only status HTTP surface.
	StatusAddr string
	// MaxResults is parsed from HYP_MAX_RESULTS; 0 means unset.
	// cmd/hyposync does not pass it to the Memoizer, so the initial
	// backfill is not bounded by it.
	MaxResults int
}

// errMissingEnv names a required environment variable that was not set.
type errMissingEnv struct {
	Name string
}

func (e *errMissingEnv) Error() string {
	return fmt.Sprintf("%s is required", e.Name)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the engine's configuration from the environment. Group
// defaults to "__world__"; Domain defaults to "hypothes.is"; CacheDir
// defaults to the current directory. APIToken is the only required
// value.
func Load() (Config, error) {
	cfg := Config{
		APIToken:   os.Getenv("HYP_API_TOKEN"),
		Username:   env("HYP_USERNAME", ""),
		Group:      env("HYP_GROUP", "__world__"),
		Domain:     env("HYP_DOMAIN", "hypothes.is"),
		CacheDir:   env("HYP_CACHE_DIR", "."),
		StatusAddr: env("STATUS_ADDR", ""),
	}

	if cfg.APIToken == "" {
		return Config{}, &errMissingEnv{Name: "HYP_API_TOKEN"}
	}

	// An unconstrained __world__ search is not rejected here: the
	// Paginator itself refuses it with UsageError, and duplicating that
	// check at load time would only let the two drift out of sync.

	if raw := os.Getenv("HYP_MAX_RESULTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("HYP_MAX_RESULTS: %w", err)
		}
		cfg.MaxResults = n
	}

	return cfg, nil
}

// CachePath derives the on-disk cache file path for this config's group.
func (c Config) CachePath() string {
	return filepath.Join(c.CacheDir, "hyposync-"+c.Group+".json")
}
