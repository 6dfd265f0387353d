// Package logging provides structured logging for teambot.
//
// It wraps log/slog with a JSON handler and a small set of child-logger
// helpers so that every entry produced while handling a command carries the
// guild, origin voice channel, relocation session and team it belongs to.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/teambot", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("state loaded", "assignments", 3, "destinations", 1)
//
// When the directory is empty, entries go to stderr.
//
// # Context Propagation
//
//	sessionLogger := logger.WithGuild(guildID).WithOrigin(originID).WithSession(id)
//	sessionLogger.WithTeam("red").Warn("member skipped", "member_id", m, "reason", r)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"member skipped","guild_id":"...","origin_id":"...","session_id":"...","team":"red","member_id":"...","reason":"not found"}
//
// # Log Rotation
//
// [NewLoggerWithRotation] writes through a [RotatingWriter] that rotates
// teambot.log at MaxSizeMB, keeping MaxBackups numbered backups (teambot.log.1
// is the newest), gzip compressed when Compress is set.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on entries.
package logging
