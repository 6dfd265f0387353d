package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TEAMBOT_STATE_TTL.
const EnvPrefix = "TEAMBOT"

// TokenEnv is the conventional variable holding the bot token. It is read
// when discord.token is not set through the config file or TEAMBOT_DISCORD_TOKEN.
const TokenEnv = "DISCORD_BOT_TOKEN"

// Config represents the complete teambot configuration
type Config struct {
	Discord    DiscordConfig    `mapstructure:"discord"`
	State      StateConfig      `mapstructure:"state"`
	Relocation RelocationConfig `mapstructure:"relocation"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Teams      TeamsConfig      `mapstructure:"teams"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DiscordConfig holds the gateway credentials
type DiscordConfig struct {
	// Token is the bot token, without the "Bot " prefix
	Token string `mapstructure:"token" yaml:"token"`
	// GuildIDs restricts command registration to these guilds. Empty means
	// every guild the bot joins.
	GuildIDs []string `mapstructure:"guild_ids" yaml:"guild_ids"`
}

// StateConfig controls the team state snapshot
type StateConfig struct {
	// Path is the snapshot file. Empty means <data dir>/team_state.json.
	// Supports ~ for home directory expansion.
	Path string `mapstructure:"path" yaml:"path"`
	// Persist writes the snapshot to disk after every change (default: true)
	Persist bool `mapstructure:"persist" yaml:"persist"`
	// TTL is how long assignments and destinations stay valid (default: 168h)
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// PruneInterval is how often expired records are swept (default: 30m, 0 = disabled)
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
	// PruneCron is a cron expression that replaces PruneInterval when set
	PruneCron string `mapstructure:"prune_cron" yaml:"prune_cron"`
}

// RelocationConfig controls how members are moved between voice channels.
// These settings are applied live when the config file changes.
type RelocationConfig struct {
	// Concurrency is the maximum number of moves in flight (default: 5)
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Pacing is the pause after each move before its slot is released (default: 500ms)
	Pacing time.Duration `mapstructure:"pacing" yaml:"pacing"`
	// MaxPerSecond caps moves per second across all sessions (0 = no cap)
	MaxPerSecond float64 `mapstructure:"max_per_second" yaml:"max_per_second"`
}

// ResolverConfig controls member identity lookups
type ResolverConfig struct {
	// Concurrency is the maximum number of remote lookups in flight (default: 5)
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// TeamsConfig controls roster selection
type TeamsConfig struct {
	// ExcludeNames are glob patterns matched case-insensitively against
	// display names. Matching members are left out of rosters and draws.
	ExcludeNames []string `mapstructure:"exclude_names" yaml:"exclude_names"`
	// Seed fixes the random source (0 = seeded from the OS)
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// MetricsConfig controls the operations HTTP server
type MetricsConfig struct {
	// Enabled starts the server exposing /metrics, /healthz and /state (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Addr is the listen address (default: ":9464")
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory holding teambot.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// ResolvePath returns the snapshot path, or "" when persistence is disabled.
func (s *StateConfig) ResolvePath() string {
	if !s.Persist {
		return ""
	}
	if s.Path == "" {
		return filepath.Join(DataDir(), "team_state.json")
	}
	return expandHome(s.Path)
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			Token:    "",
			GuildIDs: []string{},
		},
		State: StateConfig{
			Path:          "", // Empty means <data dir>/team_state.json
			Persist:       true,
			TTL:           7 * 24 * time.Hour,
			PruneInterval: 30 * time.Minute,
			PruneCron:     "",
		},
		Relocation: RelocationConfig{
			Concurrency:  5,
			Pacing:       500 * time.Millisecond,
			MaxPerSecond: 0,
		},
		Resolver: ResolverConfig{
			Concurrency: 5,
		},
		Teams: TeamsConfig{
			ExcludeNames: []string{},
			Seed:         0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	ApplyDefaults(viper.GetViper())
}

// ApplyDefaults registers default values and environment bindings with v
func ApplyDefaults(v *viper.Viper) {
	defaults := Default()

	// Discord defaults
	v.SetDefault("discord.token", defaults.Discord.Token)
	v.SetDefault("discord.guild_ids", defaults.Discord.GuildIDs)

	// State defaults
	v.SetDefault("state.path", defaults.State.Path)
	v.SetDefault("state.persist", defaults.State.Persist)
	v.SetDefault("state.ttl", defaults.State.TTL)
	v.SetDefault("state.prune_interval", defaults.State.PruneInterval)
	v.SetDefault("state.prune_cron", defaults.State.PruneCron)

	// Relocation defaults
	v.SetDefault("relocation.concurrency", defaults.Relocation.Concurrency)
	v.SetDefault("relocation.pacing", defaults.Relocation.Pacing)
	v.SetDefault("relocation.max_per_second", defaults.Relocation.MaxPerSecond)

	// Resolver defaults
	v.SetDefault("resolver.concurrency", defaults.Resolver.Concurrency)

	// Teams defaults
	v.SetDefault("teams.exclude_names", defaults.Teams.ExcludeNames)
	v.SetDefault("teams.seed", defaults.Teams.Seed)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., TEAMBOT_RELOCATION_CONCURRENCY for relocation.concurrency
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// named) without overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv(TokenEnv)
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// LiveKeys returns the keys whose changes are applied without a restart.
func LiveKeys() []string {
	return []string{
		"relocation.concurrency",
		"relocation.pacing",
		"relocation.max_per_second",
		"teams.exclude_names",
	}
}

// ChangedKeys lists the keys whose values differ between c and other.
func (c *Config) ChangedKeys(other *Config) []string {
	fields := []struct {
		key  string
		a, b any
	}{
		{"discord.token", c.Discord.Token, other.Discord.Token},
		{"discord.guild_ids", c.Discord.GuildIDs, other.Discord.GuildIDs},
		{"state.path", c.State.Path, other.State.Path},
		{"state.persist", c.State.Persist, other.State.Persist},
		{"state.ttl", c.State.TTL, other.State.TTL},
		{"state.prune_interval", c.State.PruneInterval, other.State.PruneInterval},
		{"state.prune_cron", c.State.PruneCron, other.State.PruneCron},
		{"relocation.concurrency", c.Relocation.Concurrency, other.Relocation.Concurrency},
		{"relocation.pacing", c.Relocation.Pacing, other.Relocation.Pacing},
		{"relocation.max_per_second", c.Relocation.MaxPerSecond, other.Relocation.MaxPerSecond},
		{"resolver.concurrency", c.Resolver.Concurrency, other.Resolver.Concurrency},
		{"teams.exclude_names", c.Teams.ExcludeNames, other.Teams.ExcludeNames},
		{"teams.seed", c.Teams.Seed, other.Teams.Seed},
		{"metrics.enabled", c.Metrics.Enabled, other.Metrics.Enabled},
		{"metrics.addr", c.Metrics.Addr, other.Metrics.Addr},
		{"logging.level", c.Logging.Level, other.Logging.Level},
		{"logging.dir", c.Logging.Dir, other.Logging.Dir},
		{"logging.max_size_mb", c.Logging.MaxSizeMB, other.Logging.MaxSizeMB},
		{"logging.max_backups", c.Logging.MaxBackups, other.Logging.MaxBackups},
	}

	var changed []string
	for _, f := range fields {
		// %v renders nil and empty slices alike
		if fmt.Sprintf("%v", f.a) != fmt.Sprintf("%v", f.b) {
			changed = append(changed, f.key)
		}
	}
	return changed
}

// Watcher re-reads the config file whenever it changes on disk.
type Watcher struct {
	v        *viper.Viper
	mu       sync.Mutex
	current  *Config
	onChange func(old, updated *Config)
	onError  func(error)
}

// NewWatcher creates a Watcher that starts from current. onChange receives
// every valid reload; onError receives reloads that fail to parse or
// validate, which leave the current configuration in place.
func NewWatcher(v *viper.Viper, current *Config, onChange func(old, updated *Config), onError func(error)) *Watcher {
	return &Watcher{v: v, current: current, onChange: onChange, onError: onError}
}

// Start begins watching. It is a no-op when no config file is in use.
func (w *Watcher) Start() {
	if w.v.ConfigFileUsed() == "" {
		return
	}
	w.v.OnConfigChange(func(fsnotify.Event) { w.Reload() })
	w.v.WatchConfig()
}

// Current returns the most recently accepted configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload re-reads the viper state and, if valid, swaps it in and notifies
// onChange.
func (w *Watcher) Reload() {
	updated, err := LoadFrom(w.v)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(old, updated)
	}
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "teambot")
	}
	// Fall back to ~/.config/teambot
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teambot"
	}
	return filepath.Join(home, ".config", "teambot")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory holding the team state snapshot
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "teambot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teambot"
	}
	return filepath.Join(home, ".local", "share", "teambot")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
