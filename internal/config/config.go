// Package config loads knolqueue settings. Sources are layered, later ones
// winning: built-in defaults, an optional YAML file, KNOLQUEUE_* environment
// variables (double underscore separates nested keys) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolqueue/internal/gitsource"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "KNOLQUEUE_"

// Config is the full runtime configuration.
type Config struct {
	ListenAddr  string                `koanf:"listen_addr" validate:"required"`
	LogLevel    string                `koanf:"log_level" validate:"oneof=debug info warn error"`
	DefaultDeck string                `koanf:"default_deck" validate:"required"`
	ReposDir    string                `koanf:"repos_dir" validate:"required"`
	Decks       map[string]DeckConfig `koanf:"decks" validate:"required,min=1,dive"`
	Store       StoreConfig           `koanf:"store"`
	Scheduler   SchedulerConfig       `koanf:"scheduler"`
	RateLimit   RateLimitConfig       `koanf:"rate_limit"`
	Stats       StatsConfig           `koanf:"stats"`
}

// DeckConfig describes one deck. When GitURL is set the repository is
// cloned or pulled into GitDir (derived from the URL below ReposDir when
// empty) and DeckFile is resolved inside it.
type DeckConfig struct {
	DeckFile  string `koanf:"deck_file" validate:"required"`
	StateFile string `koanf:"state_file"`
	GitURL    string `koanf:"git_url"`
	GitDir    string `koanf:"git_dir" validate:"required_with=GitURL"`
}

// Source returns the deck file path, relative to the git checkout if any.
func (d DeckConfig) Source() string {
	if d.GitURL == "" || filepath.IsAbs(d.DeckFile) {
		return d.DeckFile
	}
	return filepath.Join(d.GitDir, d.DeckFile)
}

type StoreConfig struct {
	Driver     string `koanf:"driver" validate:"oneof=file sqlite"`
	SQLitePath string `koanf:"sqlite_path" validate:"required_if=Driver sqlite"`
}

type SchedulerConfig struct {
	FreshThreshold int    `koanf:"fresh_threshold" validate:"gte=0"`
	EasyRule       string `koanf:"easy_rule" validate:"omitempty,oneof=exponential linear"`
	NormalRule     string `koanf:"normal_rule" validate:"omitempty,oneof=rebalance forget-easy"`
}

type RateLimitConfig struct {
	Enabled bool          `koanf:"enabled"`
	RPS     float64       `koanf:"rps" validate:"gt=0"`
	Burst   int           `koanf:"burst" validate:"gt=0"`
	IdleTTL time.Duration `koanf:"idle_ttl" validate:"gte=0"`
}

// StatsConfig enables the Redis rating counters when RedisAddr is set.
type StatsConfig struct {
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	Prefix        string        `koanf:"prefix"`
	TTL           time.Duration `koanf:"ttl" validate:"gte=0"`
}

// DefaultDecks mirrors the two decks shipped in data/.
func DefaultDecks() map[string]DeckConfig {
	return map[string]DeckConfig{
		"social": {DeckFile: "data/socialstudies.json", StateFile: "data/card-state.json"},
		"vocab":  {DeckFile: "data/vocab.json", StateFile: "data/card-state-vocab.json"},
	}
}

// defaults is the lowest configuration layer. Decks are left out so a
// configured deck list replaces the built-in one instead of merging into it.
type defaults struct{}

func (defaults) ReadBytes() ([]byte, error) {
	return nil, errors.New("config defaults provider does not support ReadBytes")
}

func (defaults) Read() (map[string]interface{}, error) {
	return map[string]interface{}{
		"listen_addr":  ":3000",
		"log_level":    "info",
		"default_deck": "social",
		"repos_dir":    "repos",
		"store": map[string]interface{}{
			"driver":      "file",
			"sqlite_path": "data/knolqueue.db",
		},
		"scheduler": map[string]interface{}{
			"fresh_threshold": 7,
			"easy_rule":       "exponential",
			"normal_rule":     "rebalance",
		},
		"rate_limit": map[string]interface{}{
			"enabled":  false,
			"rps":      5.0,
			"burst":    10,
			"idle_ttl": "15m",
		},
		"stats": map[string]interface{}{
			"redis_db": 0,
			"prefix":   "knolqueue:stats",
			"ttl":      "24h",
		},
	}, nil
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"listen-addr":     "listen_addr",
	"log-level":       "log_level",
	"default-deck":    "default_deck",
	"store-driver":    "store.driver",
	"sqlite-path":     "store.sqlite_path",
	"fresh-threshold": "scheduler.fresh_threshold",
	"easy-rule":       "scheduler.easy_rule",
	"normal-rule":     "scheduler.normal_rule",
	"rate-limit":      "rate_limit.enabled",
	"redis-addr":      "stats.redis_addr",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("knolqueue", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML configuration file")
	fs.String("listen-addr", ":3000", "HTTP listen address")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("default-deck", "social", "deck served when a request names none")
	fs.String("store-driver", "file", "state backend (file, sqlite)")
	fs.String("sqlite-path", "data/knolqueue.db", "SQLite database path for the sqlite driver")
	fs.Int("fresh-threshold", 7, "reviewed cards served in a row before a new card is promoted (0 disables)")
	fs.String("easy-rule", "exponential", "easy reinsertion rule (exponential, linear)")
	fs.String("normal-rule", "rebalance", "normal reinsertion rule (rebalance, forget-easy)")
	fs.Bool("rate-limit", false, "rate limit card ratings per client")
	fs.String("redis-addr", "", "Redis address for rating statistics")
	return fs
}

// Load builds the configuration from args (without the program name) and
// the process environment.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(defaults{}, nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns KNOLQUEUE_RATE_LIMIT__RPS into rate_limit.rps.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if len(c.Decks) == 0 {
		c.Decks = DefaultDecks()
	}
	for name, d := range c.Decks {
		if d.GitURL != "" && d.GitDir == "" {
			// Left empty on failure so validation reports the deck.
			d.GitDir, _ = gitsource.LocalPath(c.ReposDir, d.GitURL)
		}
		if d.StateFile == "" && d.DeckFile != "" {
			// State stays outside the checkout.
			dir := filepath.Dir(d.DeckFile)
			if d.GitURL != "" {
				dir = c.ReposDir
			}
			d.StateFile = filepath.Join(dir, "card-state-"+name+".json")
		}
		c.Decks[name] = d
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the default deck exists.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, ok := c.Decks[c.DefaultDeck]; !ok {
		return fmt.Errorf("invalid configuration: default deck %q is not one of %s",
			c.DefaultDeck, strings.Join(c.DeckNames(), ", "))
	}
	return nil
}

// DeckNames returns the configured deck names in sorted order.
func (c *Config) DeckNames() []string {
	names := make([]string, 0, len(c.Decks))
	for name := range c.Decks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
