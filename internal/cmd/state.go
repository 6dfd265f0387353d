package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/teambot/internal/config"
	"github.com/Iron-Ham/teambot/internal/state"
	"github.com/Iron-Ham/teambot/internal/teams"
	"github.com/bwmarrin/snowflake"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or maintain the persisted team state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recorded team assignments and destinations",
	Long: `Show the team assignments and destination channels recorded in the
snapshot file, grouped by the voice channel the teams were formed in.

The file is only read, never rewritten.`,
	Args: cobra.NoArgs,
	RunE: runStateShow,
}

var statePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired and malformed records from the snapshot file",
	Args:  cobra.NoArgs,
	RunE:  runStatePrune,
}

var (
	stateJSON bool   // Output the raw snapshot document
	statePath string // Overrides state.path
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(statePruneCmd)

	stateCmd.PersistentFlags().StringVar(&statePath, "file", "", "snapshot file (default is state.path)")
	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "Output the snapshot document as JSON")
}

// stateFile returns the snapshot path to operate on.
func stateFile(cfg *config.Config) (string, error) {
	if statePath != "" {
		return statePath, nil
	}
	path := cfg.State.ResolvePath()
	if path == "" {
		return "", fmt.Errorf("state persistence is disabled (state.persist=false); pass --file to read a snapshot")
	}
	return path, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	path, err := stateFile(cfg)
	if err != nil {
		return err
	}

	contents, err := state.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	if stateJSON {
		data, err := state.Encode(contents)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	styled := isTerminal(out)
	renderState(out, path, contents, time.Now(), cfg.State.TTL, styled)
	return nil
}

func runStatePrune(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	path, err := stateFile(cfg)
	if err != nil {
		return err
	}

	store := state.New(path, state.WithTTL(cfg.State.TTL))
	result := store.Load()
	if result.Ignored != nil {
		return fmt.Errorf("snapshot at %s was not loaded: %w", path, result.Ignored)
	}
	removed := result.Expired + result.Dropped + store.PruneExpired(time.Now())

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) from %s (%d assignment(s), %d destination(s) kept)\n",
		removed, path, result.Assignments, result.Destinations)
	return nil
}

// stateStyles holds the lipgloss styles used by renderState.
type stateStyles struct {
	header, muted, red, blue, warn lipgloss.Style
}

func newStateStyles(styled bool) stateStyles {
	if !styled {
		plain := lipgloss.NewStyle()
		return stateStyles{plain, plain, plain, plain, plain}
	}
	return stateStyles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		red:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
		blue:   lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	}
}

// renderState writes a per-origin summary of contents. Records older than
// ttl are flagged as expired.
func renderState(w io.Writer, path string, contents *state.Contents, now time.Time, ttl time.Duration, styled bool) {
	st := newStateStyles(styled)

	fmt.Fprintln(w, st.header.Render("TEAM STATE")+" "+st.muted.Render(path))
	fmt.Fprintln(w, strings.Repeat("─", 50))

	origins := make([]snowflake.ID, 0, len(contents.Assignments)+len(contents.Destinations))
	for origin := range contents.Assignments {
		origins = append(origins, origin)
	}
	for origin := range contents.Destinations {
		if _, ok := contents.Assignments[origin]; !ok {
			origins = append(origins, origin)
		}
	}
	slices.Sort(origins)

	if len(origins) == 0 {
		fmt.Fprintln(w, "No team state recorded.")
		return
	}

	age := func(updated time.Time) string {
		s := humanize.RelTime(updated, now, "ago", "from now")
		if now.Sub(updated) > ttl {
			s += " " + st.warn.Render("(expired)")
		}
		return s
	}

	for _, origin := range origins {
		fmt.Fprintln(w, st.header.Render("Voice channel "+origin.String()))

		if rec, ok := contents.Assignments[origin]; ok {
			fmt.Fprintf(w, "  %s (%d): %s\n", st.red.Render("Red team"), len(rec.Value.Red), joinIDs(rec.Value.Red))
			fmt.Fprintf(w, "  %s (%d): %s\n", st.blue.Render("Blue team"), len(rec.Value.Blue), joinIDs(rec.Value.Blue))
			fmt.Fprintf(w, "  %s %s\n", st.muted.Render("Assigned"), age(rec.UpdatedAt))
		} else {
			fmt.Fprintf(w, "  %s\n", st.muted.Render("No team assignment"))
		}

		if rec, ok := contents.Destinations[origin]; ok {
			fmt.Fprintf(w, "  %s %s → %s, %s → %s %s\n",
				st.muted.Render("Moved"),
				st.red.Render(teams.Red.Title()), rec.Value.Red,
				st.blue.Render(teams.Blue.Title()), rec.Value.Blue,
				age(rec.UpdatedAt))
		}
		fmt.Fprintln(w)
	}

	if contents.Dropped > 0 {
		fmt.Fprintf(w, "%s\n", st.warn.Render(fmt.Sprintf("%d malformed record(s) skipped", contents.Dropped)))
	}
}

func joinIDs(ids []snowflake.ID) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
