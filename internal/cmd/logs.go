package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/teambot/internal/config"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View bot logs",
	Long: `View and filter the JSON log written to logging.dir/teambot.log.

Examples:
  # Show the last 50 lines
  teambot logs

  # Follow logs in real-time
  teambot logs -f

  # Only warnings and errors from one guild
  teambot logs --level warn --guild 123456789012345678

  # Show one relocation session
  teambot logs --session 6f1c2a9e-0d4b-4f61-9a57-3b0c2f4d8e11 -n 0

  # Search for specific patterns
  teambot logs --grep "permission|not connected"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsFile    string
	logsTail    int
	logsFollow  bool
	logsLevel   string
	logsSince   string
	logsGrep    string
	logsGuild   string
	logsSession string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsFile, "file", "", "Log file (default is logging.dir/teambot.log)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsGuild, "guild", "", "Only show entries for this guild ID")
	logsCmd.Flags().StringVar(&logsSession, "session", "", "Only show entries for this relocation session ID")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Msg       string         `json:"msg"`
	GuildID   string         `json:"guild_id,omitempty"`
	OriginID  string         `json:"origin_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Team      string         `json:"team,omitempty"`
	Extra     map[string]any `json:"-"` // Captures additional fields
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	// First, unmarshal known fields using a type alias to avoid recursion
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Then unmarshal all fields to capture extras
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	// Remove known fields, keep the rest as extra
	for _, key := range []string{"time", "level", "msg", "guild_id", "origin_id", "session_id", "team"} {
		delete(all, key)
	}

	if len(all) > 0 {
		e.Extra = all
	}

	return nil
}

// logFilter selects which entries are shown
type logFilter struct {
	minLevel  int
	since     time.Time
	grep      *regexp.Regexp
	guildID   string
	sessionID string
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry, color bool) string {
	paint := func(code, text string) string {
		if !color {
			return text
		}
		return code + text + colorReset
	}

	var sb strings.Builder

	// Timestamp
	sb.WriteString(paint(colorGray, "["+entry.Time.Format("15:04:05.000")+"]"))

	// Level with color
	sb.WriteString(" ")
	sb.WriteString(paint(levelColor(entry.Level), "["+strings.ToUpper(entry.Level)+"]"))

	// Message
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	// Context fields
	for _, field := range []struct{ key, value string }{
		{"guild_id", entry.GuildID},
		{"origin_id", entry.OriginID},
		{"session_id", entry.SessionID},
		{"team", entry.Team},
	} {
		if field.value != "" {
			sb.WriteString(" ")
			sb.WriteString(paint(colorCyan, field.key+"="+field.value))
		}
	}

	// Extra fields
	for _, key := range slices.Sorted(maps.Keys(entry.Extra)) {
		sb.WriteString(" ")
		sb.WriteString(paint(colorCyan, key+"="))
		sb.WriteString(fmt.Sprintf("%v", entry.Extra[key]))
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	logPath := logsFile
	if logPath == "" {
		cfg := config.Get()
		if cfg.Logging.Dir == "" {
			return fmt.Errorf("logging.dir is not set, so logs go to stderr; pass --file to read a log file")
		}
		logPath = filepath.Join(cfg.Logging.Dir, logging.FileName)
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No logs found at %s\n", logPath)
		return nil
	}

	filter, err := newLogFilter(logsLevel, logsSince, logsGrep, time.Now())
	if err != nil {
		return err
	}
	filter.guildID = logsGuild
	filter.sessionID = logsSession

	color := isTerminal(out)

	// Follow mode
	if logsFollow {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return followLogs(ctx, out, logPath, filter, color)
	}

	// Non-follow mode: read and display logs
	return displayLogs(out, logPath, logsTail, filter, color)
}

// newLogFilter parses the filter flags relative to now
func newLogFilter(level, since, grep string, now time.Time) (logFilter, error) {
	filter := logFilter{minLevel: -1}

	if level != "" {
		filter.minLevel = levelPriority(logging.ParseLevel(level))
	}

	if since != "" {
		duration, err := time.ParseDuration(since)
		if err != nil {
			return filter, fmt.Errorf("invalid duration format: %w", err)
		}
		filter.since = now.Add(-duration)
	}

	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return filter, fmt.Errorf("invalid grep pattern: %w", err)
		}
		filter.grep = re
	}

	return filter, nil
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, logPath string, tail int, filter logFilter, color bool) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// If we can't parse as JSON, display raw line
			entries = append(entries, line)
			continue
		}

		// Apply filters
		if !filter.passes(&entry) {
			continue
		}

		entries = append(entries, formatLogEntry(&entry, color))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	// Apply tail limit
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	// Print entries
	for _, entry := range entries {
		fmt.Fprintln(out, entry)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}

	return nil
}

// followLogs implements tail -f behavior for the log file until ctx is done
func followLogs(ctx context.Context, out io.Writer, logPath string, filter logFilter, color bool) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Seek to end of file
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// No new data, wait briefly and try again
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Fprintln(out, line)
			continue
		}

		if !filter.passes(&entry) {
			continue
		}

		fmt.Fprintln(out, formatLogEntry(&entry, color))
	}
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	// Level filter
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}

	// Time filter
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}

	// Context filters
	if f.guildID != "" && entry.GuildID != f.guildID {
		return false
	}
	if f.sessionID != "" && entry.SessionID != f.sessionID {
		return false
	}

	// Grep filter - search in message and extra fields
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}

	return true
}

// isTerminal reports whether w is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
