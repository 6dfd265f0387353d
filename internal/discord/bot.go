package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/coordinator"
	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/logging"
)

// Intents are the gateway intents the bot needs: guilds for channels, members
// for the member cache and voice states for who sits where.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildVoiceStates

// api is the subset of *discordgo.Session the bot calls.
type api interface {
	restClient
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the bot's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithGuildIDs restricts command registration and handling to the given
// guilds. Empty means every guild the bot joins.
func WithGuildIDs(ids ...string) Option {
	return func(b *Bot) {
		for _, id := range ids {
			b.allowed[id] = struct{}{}
		}
	}
}

// Bot connects the coordinator to a Discord gateway session.
type Bot struct {
	session *discordgo.Session
	state   *discordgo.State
	api     api
	coord   *coordinator.Coordinator
	logger  *logging.Logger
	allowed map[string]struct{}

	mu      sync.Mutex
	ctx     context.Context
	appID   string
	synced  map[string]struct{}
	closing bool

	inflight sync.WaitGroup
}

// New creates a Bot for the given token. The session is not opened until
// Open is called.
func New(token string, coord *coordinator.Coordinator, opts ...Option) (*Bot, error) {
	if token == "" {
		return nil, errors.NewValidationError("Discord bot token is not set").WithField("discord.token")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true

	b := newBot(session.State, session, coord, opts...)
	b.session = session
	return b, nil
}

func newBot(state *discordgo.State, client api, coord *coordinator.Coordinator, opts ...Option) *Bot {
	b := &Bot{
		state:   state,
		api:     client,
		coord:   coord,
		logger:  logging.NopLogger(),
		allowed: make(map[string]struct{}),
		ctx:     context.Background(),
		synced:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open registers the event handlers and connects to the gateway. ctx is the
// parent context for every command; canceling it does not close the session.
func (b *Bot) Open(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "open discord gateway")
	}
	return nil
}

// Close stops accepting commands, waits for running ones until ctx is done,
// then disconnects from the gateway.
func (b *Bot) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("closing with commands still running", "error", ctx.Err().Error())
	}

	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

// Ready reports whether the gateway has delivered the Ready event.
func (b *Bot) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appID != ""
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	b.mu.Lock()
	b.appID = r.User.ID
	b.mu.Unlock()

	b.logger.Info("connected to discord",
		"user", r.User.Username,
		"user_id", r.User.ID,
		"guilds", len(r.Guilds),
	)

	// GUILD_CREATE handlers may have run before the app ID was stored.
	for _, g := range r.Guilds {
		if g != nil {
			b.syncCommands(g.ID, g.Name)
		}
	}
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	b.syncCommands(g.ID, g.Name)
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		if ic.Interaction != nil && ic.Type == discordgo.InteractionApplicationCommand {
			b.respondEphemeral(ic.Interaction, shuttingDown)
		}
		return
	}
	ctx := b.ctx
	b.inflight.Add(1)
	b.mu.Unlock()

	defer b.inflight.Done()
	b.handle(ctx, ic.Interaction)
}

func (b *Bot) guildAllowed(guildID string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[guildID]
	return ok
}

// syncCommands overwrites the guild's slash commands once per guild.
func (b *Bot) syncCommands(guildID, name string) {
	if !b.guildAllowed(guildID) {
		return
	}

	b.mu.Lock()
	appID := b.appID
	if appID == "" {
		appID = b.stateUserID()
	}
	_, done := b.synced[guildID]
	if !done && appID != "" {
		b.synced[guildID] = struct{}{}
	}
	b.mu.Unlock()
	if done || appID == "" {
		return
	}

	logger := b.logger.WithGuild(guildID)
	if _, err := b.api.ApplicationCommandBulkOverwrite(appID, guildID, ApplicationCommands()); err != nil {
		b.mu.Lock()
		delete(b.synced, guildID)
		b.mu.Unlock()
		logger.Error("failed to sync application commands", "guild", name, "error", err.Error())
		return
	}
	logger.Info("synced application commands", "guild", name)
}

// stateUserID returns the bot user recorded by discordgo's own Ready
// handler, which runs before any registered handler is dispatched.
func (b *Bot) stateUserID() string {
	if b.state == nil {
		return ""
	}
	b.state.RLock()
	defer b.state.RUnlock()
	if b.state.User == nil {
		return ""
	}
	return b.state.User.ID
}

// handle runs one interaction to completion.
func (b *Bot) handle(ctx context.Context, i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil {
		b.respondEphemeral(i, "This command can only be used within a server.")
		return
	}
	if !b.guildAllowed(i.GuildID) {
		return
	}

	guildID, err := snowflake.ParseString(i.GuildID)
	if err != nil {
		b.respondEphemeral(i, genericFailure)
		return
	}
	view := newGuildView(guildID, b.state, b.api)
	caller, ok := view.Caller(i.Member)
	if !ok {
		b.respondEphemeral(i, genericFailure)
		return
	}

	b.runCommand(ctx, i, view, caller)
}

func (b *Bot) respond(i *discordgo.Interaction, data *discordgo.InteractionResponseData) {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.WithGuild(i.GuildID).Warn("failed to respond to interaction", "error", err.Error())
	}
}

func (b *Bot) respondEphemeral(i *discordgo.Interaction, content string) {
	b.respond(i, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// deferEphemeral acknowledges a long-running command. It reports whether the
// acknowledgement went through.
func (b *Bot) deferEphemeral(i *discordgo.Interaction) bool {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.WithGuild(i.GuildID).Warn("failed to defer interaction", "error", err.Error())
		return false
	}
	return true
}

func (b *Bot) followup(i *discordgo.Interaction, content string) {
	_, err := b.api.FollowupMessageCreate(i, false, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		b.logger.WithGuild(i.GuildID).Warn("failed to send follow-up", "error", err.Error())
	}
}

// fail answers a command that was rejected before doing any work.
func (b *Bot) fail(i *discordgo.Interaction, command string, err error) {
	b.respondEphemeral(i, errorMessage(command, err))
	b.logFailure(i, command, err)
}

func (b *Bot) logFailure(i *discordgo.Interaction, command string, err error) {
	logger := b.logger.WithGuild(i.GuildID)
	if errors.IsUserFacing(err) || errors.Is(err, errors.ErrNoRecord) {
		logger.Debug("command rejected", "command", command, "reason", err.Error())
		return
	}
	logger.Error("command failed", "command", command, "error", err.Error())
}
