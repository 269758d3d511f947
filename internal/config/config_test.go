package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knolqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "social", cfg.DefaultDeck)
	assert.Equal(t, DefaultDecks(), cfg.Decks)
	assert.Equal(t, []string{"social", "vocab"}, cfg.DeckNames())
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 7, cfg.Scheduler.FreshThreshold)
	assert.Equal(t, "exponential", cfg.Scheduler.EasyRule)
	assert.Equal(t, "rebalance", cfg.Scheduler.NormalRule)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.IdleTTL)
	assert.Equal(t, 24*time.Hour, cfg.Stats.TTL)
	assert.Equal(t, "knolqueue:stats", cfg.Stats.Prefix)
}

func TestLoadFileReplacesDecks(t *testing.T) {
	path := writeYAML(t, `
listen_addr: ":8080"
default_deck: french
decks:
  french:
    deck_file: decks/french.md
scheduler:
  fresh_threshold: 0
  easy_rule: linear
rate_limit:
  enabled: true
  rps: 2.5
`)
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, []string{"french"}, cfg.DeckNames())
	assert.Equal(t, filepath.Join("decks", "card-state-french.json"), cfg.Decks["french"].StateFile)
	assert.Equal(t, 0, cfg.Scheduler.FreshThreshold)
	assert.Equal(t, "linear", cfg.Scheduler.EasyRule)
	assert.Equal(t, "rebalance", cfg.Scheduler.NormalRule)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeYAML(t, "listen_addr: \":1111\"\nlog_level: debug\n")
	t.Setenv("KNOLQUEUE_LISTEN_ADDR", ":2222")
	t.Setenv("KNOLQUEUE_RATE_LIMIT__BURST", "3")
	t.Setenv("KNOLQUEUE_DECKS__VOCAB__DECK_FILE", "other/vocab.json")
	t.Setenv("KNOLQUEUE_DEFAULT_DECK", "vocab")

	cfg, err := Load([]string{"--config", path, "--listen-addr", ":3333"})
	require.NoError(t, err)

	assert.Equal(t, ":3333", cfg.ListenAddr, "flags beat environment")
	assert.Equal(t, "debug", cfg.LogLevel, "unset flags keep lower layers")
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"vocab"}, cfg.DeckNames(), "configured decks replace the built-in ones")
	assert.Equal(t, "other/vocab.json", cfg.Decks["vocab"].DeckFile)
	assert.Equal(t, filepath.Join("other", "card-state-vocab.json"), cfg.Decks["vocab"].StateFile)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := writeYAML(t, "store:\n  driver: file\n")
	t.Setenv("KNOLQUEUE_STORE__DRIVER", "sqlite")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/knolqueue.db", cfg.Store.SQLitePath)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		yaml string
	}{
		{name: "unknown driver", args: []string{"--store-driver", "mongo"}},
		{name: "unknown easy rule", args: []string{"--easy-rule", "quadratic"}},
		{name: "negative threshold", args: []string{"--fresh-threshold=-1"}},
		{name: "bad log level", args: []string{"--log-level", "loud"}},
		{name: "missing default deck", args: []string{"--default-deck", "french"}},
		{name: "unparseable git url", yaml: "decks:\n  g:\n    deck_file: a.md\n    git_url: nonsense\ndefault_deck: g\n"},
		{name: "deck without file", yaml: "decks:\n  g:\n    state_file: s.json\ndefault_deck: g\n"},
		{name: "zero rps", yaml: "rate_limit:\n  rps: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.yaml != "" {
				args = append(args, "--config", writeYAML(t, tt.yaml))
			}
			_, err := Load(args)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

func TestLoadHelp(t *testing.T) {
	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestLoadGitDeck(t *testing.T) {
	path := writeYAML(t, `
default_deck: shared
repos_dir: cache
decks:
  shared:
    deck_file: cards
    git_url: https://github.com/conorfennell/decks.git
`)
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	d := cfg.Decks["shared"]
	checkout := filepath.Join("cache", "github.com", "conorfennell", "decks")
	assert.Equal(t, checkout, d.GitDir)
	assert.Equal(t, filepath.Join(checkout, "cards"), d.Source())
	assert.Equal(t, filepath.Join("cache", "card-state-shared.json"), d.StateFile)
}

func TestDeckSource(t *testing.T) {
	local := DeckConfig{DeckFile: "data/vocab.json"}
	assert.Equal(t, "data/vocab.json", local.Source())

	git := DeckConfig{DeckFile: "cards/vocab.md", GitURL: "https://example.com/d.git", GitDir: "cache/d"}
	assert.Equal(t, filepath.Join("cache/d", "cards/vocab.md"), git.Source())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "rate_limit.rps", envKey("KNOLQUEUE_RATE_LIMIT__RPS"))
	assert.Equal(t, "decks.social.git_url", envKey("KNOLQUEUE_DECKS__SOCIAL__GIT_URL"))
}
