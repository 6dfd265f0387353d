package discord

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/coordinator"
	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/relocate"
	"github.com/Iron-Ham/teambot/internal/state"
)

func newTestBot(t *testing.T, opts ...Option) (*Bot, *fakeAPI, *discordgo.State) {
	t.Helper()
	st := newTestState(t)
	api := newFakeAPI(st)
	coord, err := coordinator.New(coordinator.Config{
		Store:        state.New(""),
		Orchestrator: relocate.New(nil, relocate.WithPacing(0)),
	}, coordinator.WithSeed(3))
	if err != nil {
		t.Fatal(err)
	}
	return newBot(st, api, coord, opts...), api, st
}

func command(t *testing.T, st *discordgo.State, callerID, name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	t.Helper()
	return &discordgo.Interaction{
		ID:      "interaction",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: testGuild,
		Member:  mustMember(t, st, callerID),
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
	}
}

func channelOption(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionChannel, Value: id}
}

func userOption(name, id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func TestBot_TeamsLifecycle(t *testing.T) {
	b, api, st := newTestBot(t)
	api.remote["16"] = &discordgo.Member{User: &discordgo.User{ID: "16", Username: "fay"}}
	ctx := context.Background()

	b.handle(ctx, command(t, st, "11", cmdRandomTeams, userOption("red_captain", "11")))
	resp := api.lastResponse(t)
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource {
		t.Fatalf("response type = %v", resp.Type)
	}
	if len(resp.Data.Embeds) != 1 || !strings.Contains(resp.Data.Embeds[0].Fields[0].Value, "⭐ <@11> (Captain)") {
		t.Fatalf("unexpected embed %+v", resp.Data.Embeds)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
		t.Error("team split should be public")
	}
	// 11-14 and the uncached 16 are eligible; the bot is not.
	if n := len(resp.Data.Embeds[0].Footer.Text); n == 0 {
		t.Error("five players should produce an extra-player footer")
	}

	b.handle(ctx, command(t, st, "11", cmdMoveTeams, channelOption("red_voice", "101"), channelOption("blue_voice", "102")))
	if resp := api.lastResponse(t); resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("move_teams should defer, got %v", resp.Type)
	}
	summary := api.lastFollowup(t)
	if !strings.Contains(summary, "to <#101>.") || !strings.Contains(summary, "to <#102>.") {
		t.Errorf("summary = %q", summary)
	}
	if got := voiceChannel(t, st, "11"); got != "101" {
		t.Errorf("red captain in %q, want 101", got)
	}
	if got := voiceChannel(t, st, "90"); got != "100" {
		t.Errorf("bot moved to %q", got)
	}

	b.handle(ctx, command(t, st, "15", cmdReconvene))
	if got := api.lastFollowup(t); got != "You must be in a voice channel to reconvene teams." {
		t.Errorf("reconvene without voice = %q", got)
	}

	// The caller is now in the red room; destinations are keyed by the lobby,
	// so they go back there first.
	if err := api.GuildMemberMove(testGuild, "11", ptr("100")); err != nil {
		t.Fatal(err)
	}
	b.handle(ctx, command(t, st, "11", cmdReconvene))
	if got := api.lastFollowup(t); got != "Moved 5 member(s) back to <#100>." {
		t.Errorf("reconvene = %q", got)
	}
	for _, id := range []string{"11", "12", "13", "14", "16"} {
		if got := voiceChannel(t, st, id); got != "100" {
			t.Errorf("member %s in %q after reconvene", id, got)
		}
	}
}

func TestBot_Rejections(t *testing.T) {
	b, api, st := newTestBot(t)
	ctx := context.Background()

	t.Run("direct message", func(t *testing.T) {
		i := command(t, st, "11", cmdRandomWinner)
		i.GuildID = ""
		b.handle(ctx, i)
		resp := api.lastResponse(t)
		if resp.Data.Content != "This command can only be used within a server." {
			t.Errorf("content = %q", resp.Data.Content)
		}
		if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
			t.Error("rejections should be ephemeral")
		}
	})

	t.Run("winner without voice", func(t *testing.T) {
		b.handle(ctx, command(t, st, "15", cmdRandomWinner))
		if got := api.lastResponse(t).Data.Content; got != "You must be in a voice channel to use this command." {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("move before teams", func(t *testing.T) {
		b.handle(ctx, command(t, st, "11", cmdMoveTeams, channelOption("red_voice", "101"), channelOption("blue_voice", "102")))
		if got := api.lastFollowup(t); got != "No team assignments found for this voice channel. Run /random_teams first." {
			t.Errorf("follow-up = %q", got)
		}
	})

	t.Run("foreign destination", func(t *testing.T) {
		b.handle(ctx, command(t, st, "11", cmdRandomTeams))
		b.handle(ctx, command(t, st, "11", cmdMoveTeams, channelOption("red_voice", "101"), channelOption("blue_voice", "200")))
		if got := api.lastFollowup(t); got != "Both destination channels must belong to this server." {
			t.Errorf("follow-up = %q", got)
		}
	})
}

func TestBot_RandomWinner(t *testing.T) {
	b, api, st := newTestBot(t)

	b.handle(context.Background(), command(t, st, "12", cmdRandomWinner))
	got := api.lastResponse(t).Data.Content
	if !strings.HasPrefix(got, "🎲 Selected <@") || !strings.HasSuffix(got, "> from <#100>!") {
		t.Errorf("content = %q", got)
	}
	if strings.Contains(got, "<@90>") {
		t.Error("bots cannot win")
	}
}

func TestBot_SyncCommands(t *testing.T) {
	t.Run("guild created before ready is synced on ready", func(t *testing.T) {
		b, api, _ := newTestBot(t)

		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1", Name: "early"}})
		if len(api.overwrites) != 0 {
			t.Fatal("commands synced before the application ID was known")
		}
		if b.Ready() {
			t.Error("Ready() = true before the Ready event")
		}

		b.onReady(nil, &discordgo.Ready{
			User:   &discordgo.User{ID: "app", Username: "teambot"},
			Guilds: []*discordgo.Guild{{ID: "1", Name: "early"}},
		})
		if !b.Ready() {
			t.Error("Ready() = false after the Ready event")
		}
		if got := strings.Join(api.overwrites, ","); got != "1" {
			t.Fatalf("overwrites after ready = %q, want 1", got)
		}

		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1", Name: "one"}})
		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "2", Name: "two"}})
		if got := strings.Join(api.overwrites, ","); got != "1,2" {
			t.Errorf("overwrites = %q, want 1,2", got)
		}
	})

	t.Run("application ID taken from session state", func(t *testing.T) {
		b, api, st := newTestBot(t)
		st.Lock()
		st.User = &discordgo.User{ID: "app"}
		st.Unlock()

		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1", Name: "one"}})
		if got := strings.Join(api.overwrites, ","); got != "1" {
			t.Errorf("overwrites = %q, want 1", got)
		}

		b.onReady(nil, &discordgo.Ready{
			User:   &discordgo.User{ID: "app"},
			Guilds: []*discordgo.Guild{{ID: "1"}},
		})
		if len(api.overwrites) != 1 {
			t.Errorf("overwrites = %v, want a single sync", api.overwrites)
		}
	})

	t.Run("restricted guilds", func(t *testing.T) {
		b, api, _ := newTestBot(t, WithGuildIDs("2"))
		b.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "app"}})
		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1"}})
		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "2"}})
		if got := strings.Join(api.overwrites, ","); got != "2" {
			t.Errorf("overwrites = %q, want 2", got)
		}
	})

	t.Run("failure is retried", func(t *testing.T) {
		b, api, _ := newTestBot(t)
		b.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "app"}})

		api.overwriteErr = errors.New("boom")
		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1"}})
		api.overwriteErr = nil
		b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "1"}})
		if len(api.overwrites) != 1 {
			t.Errorf("overwrites = %v, want one successful sync", api.overwrites)
		}
	})
}

func TestBot_Close(t *testing.T) {
	// holdMoves starts a split in the lobby and makes every later move wait
	// on the returned gate.
	holdMoves := func(t *testing.T, b *Bot, api *fakeAPI, st *discordgo.State) (gate, started chan struct{}) {
		t.Helper()
		api.remote["16"] = &discordgo.Member{User: &discordgo.User{ID: "16", Username: "fay"}}
		b.handle(context.Background(), command(t, st, "11", cmdRandomTeams))

		gate = make(chan struct{})
		started = make(chan struct{}, 16)
		api.mu.Lock()
		api.moveGate = gate
		api.moveStarted = started
		api.mu.Unlock()
		return gate, started
	}

	t.Run("waits for running commands", func(t *testing.T) {
		b, api, st := newTestBot(t)
		gate, started := holdMoves(t, b, api, st)

		move := &discordgo.InteractionCreate{Interaction: command(t, st, "11", cmdMoveTeams,
			channelOption("red_voice", "101"), channelOption("blue_voice", "102"))}
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			b.onInteractionCreate(nil, move)
		}()
		<-started

		closed := make(chan error, 1)
		go func() { closed <- b.Close(context.Background()) }()
		select {
		case <-closed:
			t.Fatal("Close returned while /move_teams was still running")
		case <-time.After(50 * time.Millisecond):
		}

		close(gate)
		select {
		case err := <-closed:
			if err != nil {
				t.Fatalf("Close() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Close did not return after the command finished")
		}
		<-finished

		if _, ok := b.coord.Store().Destinations(snowflake.ID(100)); !ok {
			t.Error("destinations were not recorded before Close returned")
		}
		if summary := api.lastFollowup(t); !strings.Contains(summary, "to <#101>.") {
			t.Errorf("summary = %q", summary)
		}
	})

	t.Run("gives up at the deadline", func(t *testing.T) {
		b, api, st := newTestBot(t)
		gate, started := holdMoves(t, b, api, st)

		move := &discordgo.InteractionCreate{Interaction: command(t, st, "11", cmdMoveTeams,
			channelOption("red_voice", "101"), channelOption("blue_voice", "102"))}
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			b.onInteractionCreate(nil, move)
		}()
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := b.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}

		close(gate)
		<-finished
	})

	t.Run("rejects commands after close", func(t *testing.T) {
		b, api, st := newTestBot(t)
		if err := b.Close(context.Background()); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		b.onInteractionCreate(nil, &discordgo.InteractionCreate{Interaction: command(t, st, "11", cmdRandomWinner)})
		resp := api.lastResponse(t)
		if resp.Data.Content != shuttingDown {
			t.Errorf("content = %q, want %q", resp.Data.Content, shuttingDown)
		}
		if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
			t.Error("shutdown notice should be ephemeral")
		}
	})
}

func TestApplicationCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range ApplicationCommands() {
		names[c.Name] = true
	}
	for _, want := range []string{cmdRandomWinner, cmdRandomTeams, cmdMoveTeams, cmdReconvene} {
		if !names[want] {
			t.Errorf("missing command %s", want)
		}
	}
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("New(\"\") error = %v, want ErrInvalidInput", err)
	}
}

func ptr(s string) *string { return &s }
