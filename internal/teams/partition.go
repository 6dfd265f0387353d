package teams

import (
	"math/rand/v2"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
)

// MinRosterSize is the smallest roster that can be split into two teams.
const MinRosterSize = 2

// Split is the output of Partition.
type Split struct {
	Red  []snowflake.ID
	Blue []snowflake.ID
	// Extra is the team that received the odd member, empty for even rosters.
	Extra Label
}

// Members returns the member IDs of the given team.
func (s Split) Members(l Label) []snowflake.ID {
	if l == Red {
		return s.Red
	}
	return s.Blue
}

// Assignment converts the split into a storable assignment for origin.
func (s Split) Assignment(origin snowflake.ID) Assignment {
	return Assignment{Origin: origin, Red: s.Red, Blue: s.Blue}
}

// Partition shuffles roster into two balanced teams. pinnedRed and pinnedBlue
// are optional captains (0 for none) that always land on their own team and
// count toward its size. Duplicate roster entries are ignored.
//
// A *errors.ValidationError (matching errors.ErrInvalidInput) is returned when
// the captains are the same member, a captain is not in the roster, or fewer
// than MinRosterSize members are eligible.
func Partition(rng *rand.Rand, roster []snowflake.ID, pinnedRed, pinnedBlue snowflake.ID) (Split, error) {
	members := dedupe(roster)

	if pinnedRed != 0 && pinnedRed == pinnedBlue {
		return Split{}, errors.NewValidationError("red and blue captains must be different members").
			WithField("blue_captain").WithValue(pinnedBlue.String())
	}
	for _, c := range []struct {
		id    snowflake.ID
		field string
	}{{pinnedRed, "red_captain"}, {pinnedBlue, "blue_captain"}} {
		if c.id != 0 && !contains(members, c.id) {
			return Split{}, errors.NewValidationError("captain must be in the voice channel").
				WithField(c.field).WithValue(c.id.String())
		}
	}
	if len(members) < MinRosterSize {
		return Split{}, errors.NewValidationError("need at least two eligible members to form teams").
			WithField("roster").WithValue(len(members))
	}

	remaining := make([]snowflake.ID, 0, len(members))
	for _, id := range members {
		if id != pinnedRed && id != pinnedBlue {
			remaining = append(remaining, id)
		}
	}
	rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})

	var red, blue []snowflake.ID
	if pinnedRed != 0 {
		red = append(red, pinnedRed)
	}
	if pinnedBlue != 0 {
		blue = append(blue, pinnedBlue)
	}

	base := len(members) / 2
	var extra Label
	if len(members)%2 == 1 {
		extra = []Label{Red, Blue}[rng.IntN(2)]
	}
	redTarget, blueTarget := base, base
	switch extra {
	case Red:
		redTarget++
	case Blue:
		blueTarget++
	}

	for _, id := range remaining {
		var open []Label
		if len(red) < redTarget {
			open = append(open, Red)
		}
		if len(blue) < blueTarget {
			open = append(open, Blue)
		}

		var chosen Label
		switch {
		case len(open) > 0:
			chosen = open[rng.IntN(len(open))]
		case len(red) <= len(blue):
			chosen = Red
		default:
			chosen = Blue
		}

		if chosen == Red {
			red = append(red, id)
		} else {
			blue = append(blue, id)
		}
	}

	return Split{Red: red, Blue: blue, Extra: extra}, nil
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func contains(ids []snowflake.ID, id snowflake.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
