package discord

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/coordinator"
	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/relocate"
	"github.com/Iron-Ham/teambot/internal/teams"
)

const (
	genericFailure = "Something went wrong while running this command. Please try again."
	shuttingDown   = "teambot is restarting. Please try again in a moment."
)

var teamIcons = map[teams.Label]string{
	teams.Red:  "🟥",
	teams.Blue: "🟦",
}

// teamsEmbed renders a fresh split.
func teamsEmbed(res *coordinator.TeamsResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Random Teams for " + locationName(res.Location),
		Color: rand.IntN(0xFFFFFF + 1),
	}
	for _, label := range teams.Labels() {
		members := res.Split.Members(label)
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s %s Team (%d)", teamIcons[label], label.Title(), len(members)),
			Value:  teamField(members, res.Captain(label)),
			Inline: true,
		})
	}
	if res.Split.Extra != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: res.Split.Extra.Title() + " team received the extra player this round.",
		}
	}
	return embed
}

func teamField(members []snowflake.ID, captain snowflake.ID) string {
	if len(members) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(members))
	for _, id := range members {
		if captain != 0 && id == captain {
			lines = append(lines, "⭐ "+teams.Mention(id)+" (Captain)")
			continue
		}
		lines = append(lines, teams.Mention(id))
	}
	return strings.Join(lines, "\n")
}

func locationName(loc teams.LocationRef) string {
	if loc.Name != "" {
		return loc.Name
	}
	return loc.Mention()
}

// moveSummary renders the per-team outcome of a move.
func moveSummary(res *coordinator.MoveResult) string {
	var lines []string
	for _, label := range teams.Labels() {
		outcome := res.Report.Team(label)
		lines = append(lines, fmt.Sprintf("Moved %d %s team member(s) to %s.",
			len(outcome.Moved), label, res.Destination(label).Mention()))
		if len(outcome.Skipped) > 0 {
			lines = append(lines, fmt.Sprintf("Skipped %d member(s) for the %s team: %s",
				len(outcome.Skipped), label, skipList(outcome.Skipped)))
		}
	}
	return strings.Join(lines, "\n")
}

// reconveneSummary renders the outcome of a reconvene.
func reconveneSummary(res *coordinator.ReconveneResult) string {
	outcome := res.Outcome()
	lines := []string{fmt.Sprintf("Moved %d member(s) back to %s.", len(outcome.Moved), res.Target.Mention())}
	if len(outcome.Skipped) > 0 {
		lines = append(lines, fmt.Sprintf("Skipped %d member(s): %s", len(outcome.Skipped), skipList(outcome.Skipped)))
	}
	return strings.Join(lines, "\n")
}

func skipList(skips []relocate.Skip) string {
	parts := make([]string, 0, len(skips))
	for _, s := range skips {
		if s.Err != nil {
			parts = append(parts, fmt.Sprintf("%s (failed to move: %s)", teams.Mention(s.MemberID), s.Reason))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", teams.Mention(s.MemberID), s.Reason))
	}
	return strings.Join(parts, ", ")
}

// winnerMessage renders a random winner.
func winnerMessage(res *coordinator.WinnerResult) string {
	return fmt.Sprintf("🎲 Selected %s from %s!", res.Winner.Mention(), res.Location.Mention())
}

// errorMessage turns a coordinator error into the reply shown to the caller.
func errorMessage(command string, err error) string {
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		return ve.Message()
	}
	if errors.Is(err, errors.ErrNoRecord) {
		switch command {
		case cmdMoveTeams:
			return "No team assignments found for this voice channel. Run /random_teams first."
		case cmdReconvene:
			return "No recent team moves found for this voice channel. Run /move_teams first."
		}
	}
	return genericFailure
}
