package coordinator

import (
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/relocate"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// ReconveneLabel is the batch label used when pulling everyone back to the
// origin channel.
const ReconveneLabel teams.Label = "reconvene"

// TeamsResult is the outcome of RandomTeams.
type TeamsResult struct {
	Location    teams.LocationRef
	Split       teams.Split
	RedCaptain  snowflake.ID
	BlueCaptain snowflake.ID
	// Members holds the resolved view of every member in the split.
	Members map[snowflake.ID]teams.MemberRef
}

// Captain returns the captain of the given team, 0 if none was chosen.
func (r *TeamsResult) Captain(l teams.Label) snowflake.ID {
	switch l {
	case teams.Red:
		return r.RedCaptain
	case teams.Blue:
		return r.BlueCaptain
	default:
		return 0
	}
}

// MoveResult is the outcome of MoveTeams.
type MoveResult struct {
	Origin teams.LocationRef
	Red    teams.LocationRef
	Blue   teams.LocationRef
	Report *relocate.Report
}

// Destination returns the channel the given team was moved into.
func (r *MoveResult) Destination(l teams.Label) teams.LocationRef {
	if l == teams.Blue {
		return r.Blue
	}
	return r.Red
}

// ReconveneResult is the outcome of Reconvene.
type ReconveneResult struct {
	Target teams.LocationRef
	Report *relocate.Report
}

// Outcome returns the single batch of the reconvene session.
func (r *ReconveneResult) Outcome() *relocate.TeamOutcome {
	return r.Report.Team(ReconveneLabel)
}

// WinnerResult is the outcome of RandomWinner.
type WinnerResult struct {
	Location teams.LocationRef
	Winner   teams.MemberRef
	// Eligible is how many members were in the draw.
	Eligible int
}
