package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Iron-Ham/teambot/internal/config"
	"github.com/Iron-Ham/teambot/internal/discord"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/opsserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve team commands",
	Long: `Connect to the Discord gateway and serve the /random_teams, /move_teams,
/reconvene and /random_winner slash commands.

The bot token is read from discord.token, TEAMBOT_DISCORD_TOKEN or
DISCORD_BOT_TOKEN. Team state is loaded from the snapshot file on start and
written after every change. SIGINT or SIGTERM shuts the bot down cleanly.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}

	bot, err := discord.New(cfg.Discord.Token, svc.coordinator,
		discord.WithLogger(logger.With("component", "discord")),
		discord.WithGuildIDs(cfg.Discord.GuildIDs...),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := config.NewWatcher(viper.GetViper(), cfg, svc.applyConfig, func(err error) {
		logger.Warn("ignoring invalid configuration change", "error", err.Error())
	})
	watcher.Start()

	svc.store.Load()

	if svc.pruner != nil {
		svc.pruner.Start(ctx)
		defer svc.pruner.Stop()
	}

	var serverErr <-chan error
	if cfg.Metrics.Enabled {
		server := opsserver.New(cfg.Metrics.Addr, svc.registry, svc.store,
			opsserver.WithLogger(logger.With("component", "opsserver")),
			opsserver.WithReadiness(bot.Ready),
		)
		serverErr = server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("ops server shutdown failed", "error", err.Error())
			}
		}()
	}

	if err := bot.Open(ctx); err != nil {
		return err
	}
	// Registered last so running commands finish before the pruner and ops
	// server stop.
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := bot.Close(closeCtx); err != nil {
			logger.Warn("discord session close failed", "error", err.Error())
		}
	}()

	logger.Info("teambot running", "version", version)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-serverErr:
		return fmt.Errorf("ops server failed: %w", err)
	}
}
