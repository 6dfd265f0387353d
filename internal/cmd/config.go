package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/teambot/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create teambot configuration",
	Long: `View or create teambot configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/teambot/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
}

// fileConfig mirrors config.Config with durations rendered as strings, the
// form viper reads back.
type fileConfig struct {
	Discord    config.DiscordConfig  `yaml:"discord"`
	State      fileState             `yaml:"state"`
	Relocation fileRelocation        `yaml:"relocation"`
	Resolver   config.ResolverConfig `yaml:"resolver"`
	Teams      config.TeamsConfig    `yaml:"teams"`
	Metrics    config.MetricsConfig  `yaml:"metrics"`
	Logging    config.LoggingConfig  `yaml:"logging"`
}

type fileState struct {
	Path          string `yaml:"path"`
	Persist       bool   `yaml:"persist"`
	TTL           string `yaml:"ttl"`
	PruneInterval string `yaml:"prune_interval"`
	PruneCron     string `yaml:"prune_cron"`
}

type fileRelocation struct {
	Concurrency  int     `yaml:"concurrency"`
	Pacing       string  `yaml:"pacing"`
	MaxPerSecond float64 `yaml:"max_per_second"`
}

func toFileConfig(cfg *config.Config) fileConfig {
	return fileConfig{
		Discord: cfg.Discord,
		State: fileState{
			Path:          cfg.State.Path,
			Persist:       cfg.State.Persist,
			TTL:           cfg.State.TTL.String(),
			PruneInterval: cfg.State.PruneInterval.String(),
			PruneCron:     cfg.State.PruneCron,
		},
		Relocation: fileRelocation{
			Concurrency:  cfg.Relocation.Concurrency,
			Pacing:       cfg.Relocation.Pacing.String(),
			MaxPerSecond: cfg.Relocation.MaxPerSecond,
		},
		Resolver: cfg.Resolver,
		Teams:    cfg.Teams,
		Metrics:  cfg.Metrics,
		Logging:  cfg.Logging,
	}
}

// writeConfigYAML renders cfg. The token is masked unless reveal is set.
func writeConfigYAML(w io.Writer, cfg *config.Config, reveal bool) error {
	fc := toFileConfig(cfg)
	if fc.Discord.Token != "" && !reveal {
		fc.Discord.Token = "********"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fc); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}
	if path := cfg.State.ResolvePath(); path != "" {
		fmt.Fprintf(out, "# State file: %s\n", path)
	} else {
		fmt.Fprintf(out, "# State file: (persistence disabled)\n")
	}

	return writeConfigYAML(out, cfg, false)
}

const configHeader = `# teambot configuration
#
# Every key can also be set through the environment with the TEAMBOT_ prefix,
# e.g. TEAMBOT_RELOCATION_CONCURRENCY=3. The bot token may instead be given as
# DISCORD_BOT_TOKEN, and a .env file in the working directory is loaded first.
#
# relocation.* and teams.exclude_names are applied while the bot is running;
# other changes take effect on restart.

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s\nUse --force to overwrite it", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(configFile)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if _, err := io.WriteString(f, configHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := writeConfigYAML(f, config.Default(), true); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_RELOCATION_CONCURRENCY), %s\n",
		config.EnvPrefix, config.EnvPrefix, config.TokenEnv)

	return nil
}
