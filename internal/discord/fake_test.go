package discord

import (
	"net/http"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

const testGuild = "1"

// fakeAPI stands in for the REST side of a discordgo session. Moves are
// reflected in the shared gateway state the way a VOICE_STATE_UPDATE would.
type fakeAPI struct {
	mu    sync.Mutex
	state *discordgo.State

	remote   map[string]*discordgo.Member
	moveErrs map[string]error
	moves    map[string]string

	responses    []*discordgo.InteractionResponse
	followups    []*discordgo.WebhookParams
	overwrites   []string
	overwriteErr error

	// moveGate, when set, holds every move until it is closed. moveStarted
	// receives a value as each move begins.
	moveGate    chan struct{}
	moveStarted chan struct{}
}

func newFakeAPI(st *discordgo.State) *fakeAPI {
	return &fakeAPI{
		state:    st,
		remote:   make(map[string]*discordgo.Member),
		moveErrs: make(map[string]error),
		moves:    make(map[string]string),
	}
}

func (f *fakeAPI) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.remote[userID]; ok {
		return m, nil
	}
	return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember, "Unknown Member")
}

func (f *fakeAPI) GuildMemberMove(guildID string, userID string, channelID *string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	gate, started := f.moveGate, f.moveStarted
	f.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	err, failed := f.moveErrs[userID]
	if !failed {
		f.moves[userID] = *channelID
	}
	f.mu.Unlock()
	if failed {
		return err
	}

	guild, gerr := f.state.Guild(guildID)
	if gerr != nil {
		return gerr
	}
	f.state.Lock()
	defer f.state.Unlock()
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			vs.ChannelID = *channelID
		}
	}
	return nil
}

func (f *fakeAPI) ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overwriteErr != nil {
		return nil, f.overwriteErr
	}
	f.overwrites = append(f.overwrites, guildID)
	return commands, nil
}

func (f *fakeAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeAPI) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{Content: data.Content}, nil
}

func (f *fakeAPI) lastResponse(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		t.Fatal("no interaction response sent")
	}
	return f.responses[len(f.responses)-1]
}

func (f *fakeAPI) lastFollowup(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.followups) == 0 {
		t.Fatal("no follow-up sent")
	}
	return f.followups[len(f.followups)-1].Content
}

func restError(status, code int, message string) *discordgo.RESTError {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: message},
	}
}

func member(id, name string, bot bool) *discordgo.Member {
	return &discordgo.Member{
		GuildID: testGuild,
		User:    &discordgo.User{ID: id, Username: name, Bot: bot},
	}
}

func voice(userID, channelID string) *discordgo.VoiceState {
	return &discordgo.VoiceState{GuildID: testGuild, UserID: userID, ChannelID: channelID}
}

// newTestState builds a guild with a lobby (100), two team rooms (101, 102),
// a text channel (103) and a voice channel owned by another guild (200).
//
// Members 11-14 and bot 90 sit in the lobby; 15 is online but not in voice;
// 16 is in the lobby but missing from the member cache.
func newTestState(t *testing.T) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	guild := &discordgo.Guild{
		ID:   testGuild,
		Name: "Test Guild",
		Channels: []*discordgo.Channel{
			{ID: "100", GuildID: testGuild, Name: "Lobby", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "101", GuildID: testGuild, Name: "Red Room", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "102", GuildID: testGuild, Name: "Blue Stage", Type: discordgo.ChannelTypeGuildStageVoice},
			{ID: "103", GuildID: testGuild, Name: "general", Type: discordgo.ChannelTypeGuildText},
			{ID: "200", GuildID: "2", Name: "Elsewhere", Type: discordgo.ChannelTypeGuildVoice},
		},
		Members: []*discordgo.Member{
			member("11", "ana", false),
			member("12", "ben", false),
			member("13", "cai", false),
			member("14", "dee", false),
			member("15", "eve", false),
			member("90", "music", true),
		},
		VoiceStates: []*discordgo.VoiceState{
			voice("11", "100"),
			voice("12", "100"),
			voice("13", "100"),
			voice("14", "100"),
			voice("90", "100"),
			{GuildID: testGuild, UserID: "16", ChannelID: "100", Member: member("16", "fay", false)},
		},
	}
	if err := st.GuildAdd(guild); err != nil {
		t.Fatalf("GuildAdd() error = %v", err)
	}
	return st
}

func mustMember(t *testing.T, st *discordgo.State, id string) *discordgo.Member {
	t.Helper()
	m, err := st.Member(testGuild, id)
	if err != nil {
		t.Fatalf("member %s not in state: %v", id, err)
	}
	return m
}

func voiceChannel(t *testing.T, st *discordgo.State, userID string) string {
	t.Helper()
	vs, err := st.VoiceState(testGuild, userID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}
