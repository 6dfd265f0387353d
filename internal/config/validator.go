package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/bwmarrin/snowflake"
	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "relocation.concurrency")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Upper bounds for the concurrency settings. Discord rate limits member
// moves per guild well below these.
const (
	maxRelocationConcurrency = 50
	maxResolverConcurrency   = 50
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDiscord()...)
	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateRelocation()...)
	errors = append(errors, c.validateResolver()...)
	errors = append(errors, c.validateTeams()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateDiscord validates the DiscordConfig. A missing token is not an
// error here; only the run command needs one.
func (c *Config) validateDiscord() []ValidationError {
	var errors []ValidationError

	for i, id := range c.Discord.GuildIDs {
		parsed, err := snowflake.ParseString(id)
		if err != nil || parsed <= 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("discord.guild_ids[%d]", i),
				Value:   id,
				Message: "must be a numeric guild ID",
			})
		}
	}

	return errors
}

// validateState validates the StateConfig
func (c *Config) validateState() []ValidationError {
	var errors []ValidationError

	if strings.ContainsRune(c.State.Path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "state.path",
			Value:   c.State.Path,
			Message: "path contains invalid null character",
		})
	}

	if c.State.TTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "state.ttl",
			Value:   c.State.TTL,
			Message: "must be positive",
		})
	}

	if c.State.PruneInterval < 0 {
		errors = append(errors, ValidationError{
			Field:   "state.prune_interval",
			Value:   c.State.PruneInterval,
			Message: "must be non-negative (0 disables pruning)",
		})
	}

	if c.State.PruneCron != "" && !gronx.New().IsValid(c.State.PruneCron) {
		errors = append(errors, ValidationError{
			Field:   "state.prune_cron",
			Value:   c.State.PruneCron,
			Message: "must be a valid cron expression",
		})
	}

	return errors
}

// validateRelocation validates the RelocationConfig
func (c *Config) validateRelocation() []ValidationError {
	var errors []ValidationError

	if c.Relocation.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "relocation.concurrency",
			Value:   c.Relocation.Concurrency,
			Message: "must be at least 1",
		})
	}
	if c.Relocation.Concurrency > maxRelocationConcurrency {
		errors = append(errors, ValidationError{
			Field:   "relocation.concurrency",
			Value:   c.Relocation.Concurrency,
			Message: fmt.Sprintf("exceeds maximum of %d", maxRelocationConcurrency),
		})
	}

	if c.Relocation.Pacing < 0 {
		errors = append(errors, ValidationError{
			Field:   "relocation.pacing",
			Value:   c.Relocation.Pacing,
			Message: "must be non-negative",
		})
	}
	const maxPacing = 10 * time.Second
	if c.Relocation.Pacing > maxPacing {
		errors = append(errors, ValidationError{
			Field:   "relocation.pacing",
			Value:   c.Relocation.Pacing,
			Message: fmt.Sprintf("exceeds maximum of %s", maxPacing),
		})
	}

	if c.Relocation.MaxPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "relocation.max_per_second",
			Value:   c.Relocation.MaxPerSecond,
			Message: "must be non-negative (0 disables the cap)",
		})
	}

	return errors
}

// validateResolver validates the ResolverConfig
func (c *Config) validateResolver() []ValidationError {
	var errors []ValidationError

	if c.Resolver.Concurrency < 1 || c.Resolver.Concurrency > maxResolverConcurrency {
		errors = append(errors, ValidationError{
			Field:   "resolver.concurrency",
			Value:   c.Resolver.Concurrency,
			Message: fmt.Sprintf("must be between 1 and %d", maxResolverConcurrency),
		})
	}

	return errors
}

// validateTeams validates the TeamsConfig
func (c *Config) validateTeams() []ValidationError {
	var errors []ValidationError

	for i, pattern := range c.Teams.ExcludeNames {
		if strings.TrimSpace(pattern) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("teams.exclude_names[%d]", i),
				Value:   pattern,
				Message: "pattern cannot be empty",
			})
			continue
		}
		if _, err := glob.Compile(strings.ToLower(pattern)); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("teams.exclude_names[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "required when metrics.enabled is true",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
