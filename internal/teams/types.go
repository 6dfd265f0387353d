package teams

import (
	"slices"

	"github.com/bwmarrin/snowflake"
)

// Label identifies one of the two teams.
type Label string

const (
	// Red is the red team.
	Red Label = "red"

	// Blue is the blue team.
	Blue Label = "blue"
)

// Labels returns both team labels in display order.
func Labels() []Label {
	return []Label{Red, Blue}
}

// String returns the string representation of the label.
func (l Label) String() string {
	return string(l)
}

// Title returns the capitalized label ("Red", "Blue").
func (l Label) Title() string {
	switch l {
	case Red:
		return "Red"
	case Blue:
		return "Blue"
	default:
		return string(l)
	}
}

// IsValid returns true if this is one of the two team labels.
func (l Label) IsValid() bool {
	return l == Red || l == Blue
}

// Assignment is the most recent team split for an origin voice channel.
// It is only ever replaced as a whole.
type Assignment struct {
	Origin snowflake.ID
	Red    []snowflake.ID
	Blue   []snowflake.ID
}

// Members returns the member IDs of the given team.
func (a Assignment) Members(l Label) []snowflake.ID {
	switch l {
	case Red:
		return a.Red
	case Blue:
		return a.Blue
	default:
		return nil
	}
}

// All returns every member ID of both teams, red first, without duplicates.
func (a Assignment) All() []snowflake.ID {
	out := make([]snowflake.ID, 0, len(a.Red)+len(a.Blue))
	seen := make(map[snowflake.ID]struct{}, cap(out))
	for _, id := range slices.Concat(a.Red, a.Blue) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Clone returns a deep copy so callers cannot alias store-owned slices.
func (a Assignment) Clone() Assignment {
	return Assignment{
		Origin: a.Origin,
		Red:    slices.Clone(a.Red),
		Blue:   slices.Clone(a.Blue),
	}
}

// Destinations records the voice channels each team was last moved into.
type Destinations struct {
	Origin snowflake.ID
	Red    snowflake.ID
	Blue   snowflake.ID
}

// Target returns the destination channel for the given team.
func (d Destinations) Target(l Label) snowflake.ID {
	switch l {
	case Red:
		return d.Red
	case Blue:
		return d.Blue
	default:
		return 0
	}
}

// MemberRef is a platform-independent view of a guild member.
type MemberRef struct {
	ID          snowflake.ID
	DisplayName string
	// Location is the voice channel the member is connected to, 0 if none.
	Location snowflake.ID
	Bot      bool
}

// InLocation reports whether the member is connected to a voice channel.
func (m MemberRef) InLocation() bool {
	return m.Location != 0
}

// Mention returns the Discord mention markup for the member.
func (m MemberRef) Mention() string {
	return Mention(m.ID)
}

// Mention returns the Discord mention markup for a raw member ID.
func Mention(id snowflake.ID) string {
	return "<@" + id.String() + ">"
}

// LocationRef is a platform-independent view of a voice channel.
type LocationRef struct {
	ID   snowflake.ID
	Name string
}

// Mention returns the Discord channel mention markup.
func (l LocationRef) Mention() string {
	return "<#" + l.ID.String() + ">"
}
