package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/teams"
)

// Slash command names.
const (
	cmdRandomWinner = "random_winner"
	cmdRandomTeams  = "random_teams"
	cmdMoveTeams    = "move_teams"
	cmdReconvene    = "reconvene"
)

var voiceChannelTypes = []discordgo.ChannelType{
	discordgo.ChannelTypeGuildVoice,
	discordgo.ChannelTypeGuildStageVoice,
}

// ApplicationCommands returns the slash commands the bot registers.
func ApplicationCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdRandomWinner,
			Description: "Pick a random member from your current voice channel",
		},
		{
			Name:        cmdRandomTeams,
			Description: "Shuffle members in a voice channel into red and blue teams",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "red_captain",
					Description: "Optional member to designate as the red team captain.",
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "blue_captain",
					Description: "Optional member to designate as the blue team captain.",
				},
			},
		},
		{
			Name:        cmdMoveTeams,
			Description: "Move the last randomized teams into the specified voice channels.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "red_voice",
					Description:  "Voice channel to move the red team into.",
					ChannelTypes: voiceChannelTypes,
					Required:     true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "blue_voice",
					Description:  "Voice channel to move the blue team into.",
					ChannelTypes: voiceChannelTypes,
					Required:     true,
				},
			},
		},
		{
			Name:        cmdReconvene,
			Description: "Return the most recent teams from their channels back to your current channel.",
		},
	}
}

// optionID returns the snowflake carried by a user or channel option, 0 when
// the option is absent.
func optionID(data discordgo.ApplicationCommandInteractionData, name string) snowflake.ID {
	opt := data.GetOption(name)
	if opt == nil {
		return 0
	}
	raw, ok := opt.Value.(string)
	if !ok {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

// runCommand dispatches one slash command for a guild.
func (b *Bot) runCommand(ctx context.Context, i *discordgo.Interaction, view *guildView, caller teams.MemberRef) {
	data := i.ApplicationCommandData()

	switch data.Name {
	case cmdRandomWinner:
		res, err := b.coord.RandomWinner(ctx, view, caller)
		if err != nil {
			b.fail(i, data.Name, err)
			return
		}
		b.respond(i, &discordgo.InteractionResponseData{Content: winnerMessage(res)})

	case cmdRandomTeams:
		res, err := b.coord.RandomTeams(ctx, view, caller, optionID(data, "red_captain"), optionID(data, "blue_captain"))
		if err != nil {
			b.fail(i, data.Name, err)
			return
		}
		b.respond(i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{teamsEmbed(res)}})

	case cmdMoveTeams:
		if !b.deferEphemeral(i) {
			return
		}
		res, err := b.coord.MoveTeams(ctx, view, caller, optionID(data, "red_voice"), optionID(data, "blue_voice"))
		if err != nil {
			b.followup(i, errorMessage(data.Name, err))
			b.logFailure(i, data.Name, err)
			return
		}
		b.followup(i, moveSummary(res))

	case cmdReconvene:
		if !b.deferEphemeral(i) {
			return
		}
		res, err := b.coord.Reconvene(ctx, view, caller)
		if err != nil {
			b.followup(i, errorMessage(data.Name, err))
			b.logFailure(i, data.Name, err)
			return
		}
		b.followup(i, reconveneSummary(res))

	default:
		b.logger.WithGuild(i.GuildID).Warn("unknown command", "command", data.Name)
	}
}
