package cmd

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/teambot/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build metadata, set by SetVersionInfo from main.
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "teambot",
	Short: "Discord bot that splits voice channels into random teams",
	Long: `teambot splits the members of a Discord voice channel into balanced red
and blue teams, moves each team to its own voice channel, and brings
everyone back afterwards. Team assignments survive restarts.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata reported by the version command.
func SetVersionInfo(v, c string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/teambot/config.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file to load before reading the environment (default is ./.env)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("env_file", rootCmd.PersistentFlags().Lookup("env-file"))
}

func initConfig() {
	// Variables from .env must be in the environment before viper reads it
	var envFiles []string
	if envFile := viper.GetString("env_file"); envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
