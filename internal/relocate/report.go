package relocate

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/teams"
)

// Skip reasons for members that were never relocated.
const (
	ReasonNotFound      = "not found"
	ReasonNotInLocation = "not in a voice channel"
	ReasonForbidden     = "missing permission to move members"
)

// Batch is the work for one team: who to move and where.
type Batch struct {
	Members     []snowflake.ID
	Destination snowflake.ID
}

// Placement is a member that ended up in the destination.
type Placement struct {
	Member teams.MemberRef
	// NoOp is set when the member was already there and no call was made.
	NoOp bool
}

// Skip is a member that was not relocated.
type Skip struct {
	MemberID snowflake.ID
	// Member is nil when the ID could not be resolved.
	Member *teams.MemberRef
	Reason string
	// Err is the underlying failure for members whose move call failed.
	Err error
}

// Name returns the member's display name, or its mention when unresolved.
func (s Skip) Name() string {
	if s.Member != nil && s.Member.DisplayName != "" {
		return s.Member.DisplayName
	}
	return teams.Mention(s.MemberID)
}

// TeamOutcome is the result for one team, in batch order.
type TeamOutcome struct {
	Destination snowflake.ID
	Moved       []Placement
	Skipped     []Skip
}

// Calls returns how many relocation calls were issued for the team.
func (o *TeamOutcome) Calls() int {
	n := 0
	for _, p := range o.Moved {
		if !p.NoOp {
			n++
		}
	}
	for _, s := range o.Skipped {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Report is the result of one relocation session.
type Report struct {
	SessionID string
	Teams     map[teams.Label]*TeamOutcome
	Duration  time.Duration
}

// Team returns the outcome for label, or an empty outcome if the team was
// not part of the session.
func (r *Report) Team(label teams.Label) *TeamOutcome {
	if o, ok := r.Teams[label]; ok {
		return o
	}
	return &TeamOutcome{}
}

// Totals returns the number of moved and skipped members across teams.
func (r *Report) Totals() (moved, skipped int) {
	for _, o := range r.Teams {
		moved += len(o.Moved)
		skipped += len(o.Skipped)
	}
	return moved, skipped
}
