package coordinator

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/relocate"
	"github.com/Iron-Ham/teambot/internal/state"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// Config holds required dependencies for creating a Coordinator.
type Config struct {
	Store        *state.Store
	Orchestrator *relocate.Orchestrator
}

// Coordinator runs team commands. It is safe for concurrent use; the store
// serializes commits and the orchestrator bounds relocation calls across
// concurrent commands.
type Coordinator struct {
	store        *state.Store
	orchestrator *relocate.Orchestrator
	logger       *logging.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	exclude []glob.Glob
}

// New creates a Coordinator. It fails if a required dependency is missing or
// an exclusion pattern does not compile.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("coordinator: Store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("coordinator: Orchestrator is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}

	c := &Coordinator{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		logger:       o.logger,
		rng:          newRand(o.seed),
	}
	if err := c.compileExclusions(o.excludeNames); err != nil {
		return nil, err
	}
	return c, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func (c *Coordinator) compileExclusions(patterns []string) error {
	exclude := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return errors.NewValidationError("invalid exclusion pattern").
				WithField("teams.exclude_names").WithValue(pattern).WithCause(err)
		}
		exclude = append(exclude, g)
	}
	c.mu.Lock()
	c.exclude = exclude
	c.mu.Unlock()
	return nil
}

// SetExcludeNames replaces the exclusion patterns. On error the previous
// patterns stay in effect.
func (c *Coordinator) SetExcludeNames(patterns []string) error {
	return c.compileExclusions(patterns)
}

// Store returns the coordinator's state store.
func (c *Coordinator) Store() *state.Store {
	return c.store
}

// Orchestrator returns the coordinator's relocation orchestrator.
func (c *Coordinator) Orchestrator() *relocate.Orchestrator {
	return c.orchestrator
}

// excluded reports whether the member's display name matches an exclusion.
func (c *Coordinator) excluded(m teams.MemberRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := strings.ToLower(m.DisplayName)
	for _, g := range c.exclude {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// eligible returns the non-bot, non-excluded members of the channel.
func (c *Coordinator) eligible(occupants []teams.MemberRef) []teams.MemberRef {
	out := make([]teams.MemberRef, 0, len(occupants))
	for _, m := range occupants {
		if m.Bot || c.excluded(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// callerLocation returns the caller's voice channel or a user-facing error.
func callerLocation(p Platform, caller teams.MemberRef, message string) (teams.LocationRef, error) {
	if !caller.InLocation() {
		return teams.LocationRef{}, errors.NewValidationError(message).WithField("caller")
	}
	if loc, ok := p.Channel(caller.Location); ok {
		return loc, nil
	}
	return teams.LocationRef{ID: caller.Location}, nil
}

// RandomTeams splits the non-bot members of the caller's voice channel into
// red and blue and records the split for that channel. redCaptain and
// blueCaptain are optional (0 for none).
func (c *Coordinator) RandomTeams(ctx context.Context, p Platform, caller teams.MemberRef, redCaptain, blueCaptain snowflake.ID) (*TeamsResult, error) {
	loc, err := callerLocation(p, caller, "You must be in a voice channel to use this command.")
	if err != nil {
		return nil, err
	}

	if redCaptain != 0 && redCaptain == blueCaptain {
		return nil, errors.NewValidationError("Red and blue captains must be different members.").
			WithField("blue_captain").WithValue(blueCaptain.String())
	}

	occupants := p.Occupants(loc.ID)
	byID := make(map[snowflake.ID]teams.MemberRef, len(occupants))
	for _, m := range occupants {
		byID[m.ID] = m
	}

	for _, captain := range []struct {
		id    snowflake.ID
		label teams.Label
	}{{redCaptain, teams.Red}, {blueCaptain, teams.Blue}} {
		if captain.id == 0 {
			continue
		}
		m, ok := byID[captain.id]
		if !ok {
			return nil, errors.NewValidationError("The "+captain.label.String()+" team captain must be in "+loc.Mention()+".").
				WithField(captain.label.String() + "_captain").WithValue(captain.id.String())
		}
		if m.Bot {
			return nil, errors.NewValidationError("Bots cannot be captains.").
				WithField(captain.label.String() + "_captain").WithValue(captain.id.String())
		}
	}

	var roster []snowflake.ID
	members := make(map[snowflake.ID]teams.MemberRef, len(occupants))
	for _, m := range c.eligible(occupants) {
		roster = append(roster, m.ID)
		members[m.ID] = m
	}
	// Captains always play even if their name matches an exclusion.
	for _, id := range []snowflake.ID{redCaptain, blueCaptain} {
		if _, ok := members[id]; id != 0 && !ok {
			roster = append(roster, id)
			members[id] = byID[id]
		}
	}

	if len(roster) < teams.MinRosterSize {
		return nil, errors.NewValidationError("Need at least two eligible members in "+loc.Mention()+" to form teams.").
			WithField("roster").WithValue(len(roster))
	}

	c.mu.Lock()
	split, err := teams.Partition(c.rng, roster, redCaptain, blueCaptain)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.store.CommitAssignment(loc.ID, split.Assignment(loc.ID))

	c.logger.WithGuild(p.GuildID().String()).WithOrigin(loc.ID.String()).Info("teams randomized",
		"red", len(split.Red),
		"blue", len(split.Blue),
		"extra", split.Extra.String(),
	)

	return &TeamsResult{
		Location:    loc,
		Split:       split,
		RedCaptain:  redCaptain,
		BlueCaptain: blueCaptain,
		Members:     members,
	}, nil
}

// MoveTeams moves the split recorded for the caller's channel into the two
// destination channels and records them. Destinations are recorded even when
// some members could not be moved.
func (c *Coordinator) MoveTeams(ctx context.Context, p Platform, caller teams.MemberRef, redDest, blueDest snowflake.ID) (*MoveResult, error) {
	origin, err := callerLocation(p, caller, "You must be in a voice channel to move the teams.")
	if err != nil {
		return nil, err
	}

	red, redOK := p.Channel(redDest)
	blue, blueOK := p.Channel(blueDest)
	if !redOK || !blueOK {
		return nil, errors.NewValidationError("Both destination channels must belong to this server.").
			WithField("destination")
	}

	assignment, ok := c.store.Assignment(origin.ID)
	if !ok {
		return nil, errors.NewNotFoundError("team assignment", origin.ID.String()).WithCause(errors.ErrNoRecord)
	}

	report := c.orchestrator.Relocate(ctx, p, p, map[teams.Label]relocate.Batch{
		teams.Red:  {Members: assignment.Red, Destination: red.ID},
		teams.Blue: {Members: assignment.Blue, Destination: blue.ID},
	})

	c.store.CommitDestinations(origin.ID, teams.Destinations{Red: red.ID, Blue: blue.ID})

	moved, skipped := report.Totals()
	c.logger.WithGuild(p.GuildID().String()).WithOrigin(origin.ID.String()).Info("teams moved",
		"session_id", report.SessionID,
		"moved", moved,
		"skipped", skipped,
	)

	return &MoveResult{Origin: origin, Red: red, Blue: blue, Report: report}, nil
}

// Reconvene moves the last split, plus anyone currently sitting in either
// destination channel, back into the caller's channel.
func (c *Coordinator) Reconvene(ctx context.Context, p Platform, caller teams.MemberRef) (*ReconveneResult, error) {
	target, err := callerLocation(p, caller, "You must be in a voice channel to reconvene teams.")
	if err != nil {
		return nil, err
	}

	dest, ok := c.store.Destinations(target.ID)
	if !ok {
		return nil, errors.NewNotFoundError("team destinations", target.ID.String()).WithCause(errors.ErrNoRecord)
	}

	for _, label := range teams.Labels() {
		if _, ok := p.Channel(dest.Target(label)); !ok {
			return nil, errors.NewValidationError("The "+label.String()+" team channel could not be found. Run /move_teams again.").
				WithField(label.String() + "_channel").WithValue(dest.Target(label).String())
		}
	}

	var ids []snowflake.ID
	if assignment, ok := c.store.Assignment(target.ID); ok {
		ids = append(ids, assignment.All()...)
	}
	for _, label := range teams.Labels() {
		for _, m := range p.Occupants(dest.Target(label)) {
			if !m.Bot {
				ids = append(ids, m.ID)
			}
		}
	}

	report := c.orchestrator.Relocate(ctx, p, p, map[teams.Label]relocate.Batch{
		ReconveneLabel: {Members: ids, Destination: target.ID},
	})

	moved, skipped := report.Totals()
	c.logger.WithGuild(p.GuildID().String()).WithOrigin(target.ID.String()).Info("teams reconvened",
		"session_id", report.SessionID,
		"moved", moved,
		"skipped", skipped,
	)

	return &ReconveneResult{Target: target, Report: report}, nil
}

// RandomWinner picks one eligible member of the caller's voice channel
// uniformly at random.
func (c *Coordinator) RandomWinner(ctx context.Context, p Platform, caller teams.MemberRef) (*WinnerResult, error) {
	loc, err := callerLocation(p, caller, "You must be in a voice channel to use this command.")
	if err != nil {
		return nil, err
	}

	candidates := c.eligible(p.Occupants(loc.ID))
	if len(candidates) == 0 {
		return nil, errors.NewValidationError("No eligible members found in " + loc.Mention() + ".").
			WithField("roster")
	}

	c.mu.Lock()
	winner := candidates[c.rng.IntN(len(candidates))]
	c.mu.Unlock()

	return &WinnerResult{Location: loc, Winner: winner, Eligible: len(candidates)}, nil
}
