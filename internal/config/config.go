package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"rss-watcher/internal/match"
	"rss-watcher/internal/opml"
)

type Config struct {
	Feeds          []string      `yaml:"feeds"`
	FeedsOPML      string        `yaml:"feeds_opml"`
	Keywords       []string      `yaml:"keywords"`
	KeywordsFile   string        `yaml:"keywords_file"`
	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxEntryAge    time.Duration `yaml:"max_entry_age"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	UserAgent      string        `yaml:"user_agent"`
	Interval       time.Duration `yaml:"interval"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	Store          StoreConfig   `yaml:"store"`
	Webhooks       []Webhook     `yaml:"webhooks"`
}

type StoreConfig struct {
	Type              string `yaml:"type"` // "file", "valkey" or "memory"
	SeenPath          string `yaml:"seen_path"`
	CachePath         string `yaml:"cache_path"`
	Address           string `yaml:"address"`
	Password          string `yaml:"password"`
	RetentionDays     int    `yaml:"retention_days"`
	MaxEntriesPerFeed int    `yaml:"max_entries_per_feed"`
	PrimeIfEmpty      bool   `yaml:"prime_if_empty"`
}

type Webhook struct {
	Name         string        `yaml:"name"`
	URL          string        `yaml:"url"`
	Provider     string        `yaml:"provider"` // "generic" (default) or "discord"
	PostInterval time.Duration `yaml:"post_interval"`
}

// ConfigError is a missing or invalid setting. It is always fatal and is
// reported before any network activity.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Default returns the settings used for anything the file leaves out.
func Default() *Config {
	return &Config{
		Concurrency:    20,
		RequestTimeout: 25 * time.Second,
		MaxEntryAge:    7 * 24 * time.Hour,
		MaxBodyBytes:   10 << 20,
		UserAgent:      "rss-watcher/1.0",
		Store: StoreConfig{
			Type:              "file",
			SeenPath:          ".state/seen.json",
			CachePath:         ".state/cache.json",
			RetentionDays:     30,
			MaxEntriesPerFeed: 2000,
		},
	}
}

// Load reads the YAML file at path over the defaults, merges feeds from the
// OPML file and keyword lines from the keywords file, and validates the
// result. Relative feeds_opml, keywords_file and store paths are resolved
// against the directory of path.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "file", Reason: "cannot read " + path, Err: err}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, &ConfigError{Field: "file", Reason: "invalid yaml in " + path, Err: err}
	}

	base := filepath.Dir(path)

	if c.FeedsOPML != "" {
		urls, err := opml.ParseFile(resolve(base, c.FeedsOPML))
		if err != nil {
			return nil, &ConfigError{Field: "feeds_opml", Reason: "cannot load " + c.FeedsOPML, Err: err}
		}
		c.Feeds = append(c.Feeds, urls...)
	}
	c.Feeds = dedupe(c.Feeds)

	if c.KeywordsFile != "" {
		f, err := os.Open(resolve(base, c.KeywordsFile))
		if err != nil {
			return nil, &ConfigError{Field: "keywords_file", Reason: "cannot open " + c.KeywordsFile, Err: err}
		}
		lines, err := match.ReadLines(f)
		f.Close()
		if err != nil {
			return nil, &ConfigError{Field: "keywords_file", Reason: "cannot read " + c.KeywordsFile, Err: err}
		}
		c.Keywords = append(c.Keywords, lines...)
	}

	if c.Store.SeenPath != "" {
		c.Store.SeenPath = resolve(base, c.Store.SeenPath)
	}
	if c.Store.CachePath != "" {
		c.Store.CachePath = resolve(base, c.Store.CachePath)
	}

	for i := range c.Webhooks {
		if c.Webhooks[i].Provider == "" {
			c.Webhooks[i].Provider = "generic"
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports every problem found, each as a *ConfigError.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Feeds) == 0 {
		errs = append(errs, &ConfigError{Field: "feeds", Reason: "no feeds configured"})
	}
	if c.Concurrency < 1 {
		errs = append(errs, &ConfigError{Field: "concurrency", Reason: "must be at least 1"})
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, &ConfigError{Field: "request_timeout", Reason: "must be positive"})
	}
	if c.MaxEntryAge < 0 {
		errs = append(errs, &ConfigError{Field: "max_entry_age", Reason: "must not be negative"})
	}
	if c.Interval < 0 {
		errs = append(errs, &ConfigError{Field: "interval", Reason: "must not be negative"})
	}

	switch c.Store.Type {
	case "file":
		if c.Store.SeenPath == "" || c.Store.CachePath == "" {
			errs = append(errs, &ConfigError{Field: "store", Reason: "seen_path and cache_path are required"})
		} else if c.Store.SeenPath == c.Store.CachePath {
			errs = append(errs, &ConfigError{Field: "store", Reason: "seen_path and cache_path must differ"})
		}
	case "valkey":
		if c.Store.Address == "" {
			errs = append(errs, &ConfigError{Field: "store.address", Reason: "required for valkey store"})
		}
	case "memory":
	default:
		errs = append(errs, &ConfigError{Field: "store.type", Reason: fmt.Sprintf("unknown store type %q", c.Store.Type)})
	}
	if c.Store.RetentionDays < 0 {
		errs = append(errs, &ConfigError{Field: "store.retention_days", Reason: "must not be negative"})
	}
	if c.Store.MaxEntriesPerFeed < 0 {
		errs = append(errs, &ConfigError{Field: "store.max_entries_per_feed", Reason: "must not be negative"})
	}

	for i, wh := range c.Webhooks {
		field := fmt.Sprintf("webhooks[%d]", i)
		if wh.URL == "" {
			errs = append(errs, &ConfigError{Field: field, Reason: "url is required"})
		}
		if wh.Provider != "" && wh.Provider != "generic" && wh.Provider != "discord" {
			errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf("unknown provider %q", wh.Provider)})
		}
	}

	return errors.Join(errs...)
}

// Retention is the dedup retention window.
func (s StoreConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
