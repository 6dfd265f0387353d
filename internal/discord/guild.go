package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// restClient is the subset of *discordgo.Session used for members.
type restClient interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error
}

// guildView answers platform questions for a single guild. It implements
// coordinator.Platform.
type guildView struct {
	id    snowflake.ID
	state *discordgo.State
	rest  restClient
}

func newGuildView(id snowflake.ID, state *discordgo.State, rest restClient) *guildView {
	return &guildView{id: id, state: state, rest: rest}
}

func (g *guildView) GuildID() snowflake.ID {
	return g.id
}

// Lookup resolves a member from the gateway cache.
func (g *guildView) Lookup(id snowflake.ID) (teams.MemberRef, bool) {
	m, err := g.state.Member(g.id.String(), id.String())
	if err != nil || m.User == nil {
		return teams.MemberRef{}, false
	}
	return g.memberRef(m), true
}

// Fetch resolves a member over REST and adds it to the cache.
func (g *guildView) Fetch(ctx context.Context, id snowflake.ID) (teams.MemberRef, error) {
	m, err := g.rest.GuildMember(g.id.String(), id.String(), discordgo.WithContext(ctx))
	if err != nil {
		return teams.MemberRef{}, classify("fetch member", err).WithMember(id.String())
	}
	if m == nil || m.User == nil {
		return teams.MemberRef{}, errors.NewPlatformError("fetch member", errors.ErrNotFound).WithMember(id.String())
	}
	m.GuildID = g.id.String()
	_ = g.state.MemberAdd(m)
	return g.memberRef(m), nil
}

// Move connects the member to the destination voice channel.
func (g *guildView) Move(ctx context.Context, member, destination snowflake.ID) error {
	channelID := destination.String()
	if err := g.rest.GuildMemberMove(g.id.String(), member.String(), &channelID, discordgo.WithContext(ctx)); err != nil {
		return classify("move member", err).WithMember(member.String()).WithLocation(channelID)
	}
	return nil
}

// Channel returns the voice or stage channel with the given ID if it belongs
// to this guild.
func (g *guildView) Channel(id snowflake.ID) (teams.LocationRef, bool) {
	if id == 0 {
		return teams.LocationRef{}, false
	}
	c, err := g.state.Channel(id.String())
	if err != nil || c.GuildID != g.id.String() || !isVoice(c.Type) {
		return teams.LocationRef{}, false
	}
	return teams.LocationRef{ID: id, Name: c.Name}, true
}

// Occupants returns everyone connected to the voice channel.
func (g *guildView) Occupants(location snowflake.ID) []teams.MemberRef {
	guild, err := g.state.Guild(g.id.String())
	if err != nil {
		return nil
	}

	channelID := location.String()
	g.state.RLock()
	var states []discordgo.VoiceState
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			states = append(states, *vs)
		}
	}
	g.state.RUnlock()

	out := make([]teams.MemberRef, 0, len(states))
	for _, vs := range states {
		id, err := snowflake.ParseString(vs.UserID)
		if err != nil {
			continue
		}
		if ref, ok := g.Lookup(id); ok {
			out = append(out, ref)
			continue
		}
		ref := teams.MemberRef{ID: id, Location: location}
		if vs.Member != nil && vs.Member.User != nil {
			ref.DisplayName = vs.Member.DisplayName()
			ref.Bot = vs.Member.User.Bot
		}
		out = append(out, ref)
	}
	return out
}

// Caller builds the member view of the user who ran a command.
func (g *guildView) Caller(m *discordgo.Member) (teams.MemberRef, bool) {
	if m == nil || m.User == nil {
		return teams.MemberRef{}, false
	}
	if _, err := snowflake.ParseString(m.User.ID); err != nil {
		return teams.MemberRef{}, false
	}
	return g.memberRef(m), true
}

// memberRef converts a discordgo member, reading its voice channel from the
// cached voice states.
func (g *guildView) memberRef(m *discordgo.Member) teams.MemberRef {
	id, _ := snowflake.ParseString(m.User.ID)
	ref := teams.MemberRef{
		ID:          id,
		DisplayName: m.DisplayName(),
		Bot:         m.User.Bot,
	}
	if vs, err := g.state.VoiceState(g.id.String(), m.User.ID); err == nil && vs.ChannelID != "" {
		ref.Location, _ = snowflake.ParseString(vs.ChannelID)
	}
	return ref
}

func isVoice(t discordgo.ChannelType) bool {
	return t == discordgo.ChannelTypeGuildVoice || t == discordgo.ChannelTypeGuildStageVoice
}
