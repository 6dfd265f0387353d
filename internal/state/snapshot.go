package state

import (
	"encoding/json"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// FormatVersion is the snapshot version this build reads and writes.
const FormatVersion = 1

// Snapshot is the on-disk document.
type Snapshot struct {
	Version      int                         `json:"version"`
	Assignments  map[string]AssignmentEntry  `json:"assignments"`
	Destinations map[string]DestinationEntry `json:"destinations"`
}

// AssignmentEntry is one persisted team assignment.
type AssignmentEntry struct {
	RedMemberIDs  []int64 `json:"redMemberIds"`
	BlueMemberIDs []int64 `json:"blueMemberIds"`
	UpdatedAt     float64 `json:"updatedAt"`
}

// DestinationEntry is one persisted pair of destination channels.
type DestinationEntry struct {
	RedTarget  int64   `json:"redTarget"`
	BlueTarget int64   `json:"blueTarget"`
	UpdatedAt  float64 `json:"updatedAt"`
}

// Record pairs a stored value with its commit time.
type Record[T any] struct {
	Value     T
	UpdatedAt time.Time
}

// Age returns how long ago the record was committed.
func (r Record[T]) Age(now time.Time) time.Duration {
	return now.Sub(r.UpdatedAt)
}

// Expired reports whether the record is older than ttl. A record exactly ttl
// old is still valid.
func (r Record[T]) Expired(now time.Time, ttl time.Duration) bool {
	return r.Age(now) > ttl
}

// Contents is a decoded snapshot.
type Contents struct {
	Assignments  map[snowflake.ID]Record[teams.Assignment]
	Destinations map[snowflake.ID]Record[teams.Destinations]
	// Dropped counts entries that were present but malformed.
	Dropped int
}

// Empty returns Contents with no records.
func Empty() *Contents {
	return &Contents{
		Assignments:  make(map[snowflake.ID]Record[teams.Assignment]),
		Destinations: make(map[snowflake.ID]Record[teams.Destinations]),
	}
}

// rawSnapshot mirrors Snapshot with every field optional so that missing
// fields can be told apart from zero values.
type rawSnapshot struct {
	Version      *int                       `json:"version"`
	Assignments  map[string]json.RawMessage `json:"assignments"`
	Destinations map[string]json.RawMessage `json:"destinations"`
}

type rawAssignment struct {
	RedMemberIDs  *[]int64 `json:"redMemberIds"`
	BlueMemberIDs *[]int64 `json:"blueMemberIds"`
	UpdatedAt     *float64 `json:"updatedAt"`
}

type rawDestination struct {
	RedTarget  *int64   `json:"redTarget"`
	BlueTarget *int64   `json:"blueTarget"`
	UpdatedAt  *float64 `json:"updatedAt"`
}

// Decode parses a snapshot document.
//
// It returns an error wrapping errors.ErrCorruptSnapshot if data is not a
// snapshot object, or errors.ErrFormatMismatch if the version is missing or
// differs from FormatVersion. Otherwise every well-formed entry is returned
// and malformed ones are counted in Contents.Dropped.
func Decode(data []byte) (*Contents, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.Join(errors.ErrCorruptSnapshot, err), "decode snapshot")
	}
	if raw.Version == nil || *raw.Version != FormatVersion {
		found := "none"
		if raw.Version != nil {
			found = strconv.Itoa(*raw.Version)
		}
		return nil, errors.Wrapf(errors.ErrFormatMismatch, "found version %s, expected %d", found, FormatVersion)
	}

	out := Empty()

	for key, msg := range raw.Assignments {
		origin, ok := parseID(key)
		if !ok {
			out.Dropped++
			continue
		}
		var entry rawAssignment
		if err := json.Unmarshal(msg, &entry); err != nil ||
			entry.RedMemberIDs == nil || entry.BlueMemberIDs == nil || entry.UpdatedAt == nil {
			out.Dropped++
			continue
		}
		red, okRed := toIDs(*entry.RedMemberIDs)
		blue, okBlue := toIDs(*entry.BlueMemberIDs)
		if !okRed || !okBlue {
			out.Dropped++
			continue
		}
		out.Assignments[origin] = Record[teams.Assignment]{
			Value:     teams.Assignment{Origin: origin, Red: red, Blue: blue},
			UpdatedAt: fromUnixSeconds(*entry.UpdatedAt),
		}
	}

	for key, msg := range raw.Destinations {
		origin, ok := parseID(key)
		if !ok {
			out.Dropped++
			continue
		}
		var entry rawDestination
		if err := json.Unmarshal(msg, &entry); err != nil ||
			entry.RedTarget == nil || entry.BlueTarget == nil || entry.UpdatedAt == nil ||
			*entry.RedTarget <= 0 || *entry.BlueTarget <= 0 {
			out.Dropped++
			continue
		}
		out.Destinations[origin] = Record[teams.Destinations]{
			Value: teams.Destinations{
				Origin: origin,
				Red:    snowflake.ParseInt64(*entry.RedTarget),
				Blue:   snowflake.ParseInt64(*entry.BlueTarget),
			},
			UpdatedAt: fromUnixSeconds(*entry.UpdatedAt),
		}
	}

	return out, nil
}

// Encode renders c as an indented snapshot document.
func Encode(c *Contents) ([]byte, error) {
	snap := Snapshot{
		Version:      FormatVersion,
		Assignments:  make(map[string]AssignmentEntry, len(c.Assignments)),
		Destinations: make(map[string]DestinationEntry, len(c.Destinations)),
	}
	for origin, rec := range c.Assignments {
		snap.Assignments[origin.String()] = AssignmentEntry{
			RedMemberIDs:  fromIDs(rec.Value.Red),
			BlueMemberIDs: fromIDs(rec.Value.Blue),
			UpdatedAt:     toUnixSeconds(rec.UpdatedAt),
		}
	}
	for origin, rec := range c.Destinations {
		snap.Destinations[origin.String()] = DestinationEntry{
			RedTarget:  rec.Value.Red.Int64(),
			BlueTarget: rec.Value.Blue.Int64(),
			UpdatedAt:  toUnixSeconds(rec.UpdatedAt),
		}
	}
	return json.MarshalIndent(snap, "", "  ")
}

// ReadFile reads and decodes the snapshot at path without modifying it.
// A missing file yields empty contents and no error.
func ReadFile(path string) (*Contents, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("read snapshot", err).WithPath(path)
	}
	return Decode(data)
}

func parseID(s string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(s)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toIDs(raw []int64) ([]snowflake.ID, bool) {
	out := make([]snowflake.ID, 0, len(raw))
	for _, v := range raw {
		if v <= 0 {
			return nil, false
		}
		out = append(out, snowflake.ParseInt64(v))
	}
	return out, true
}

func fromIDs(ids []snowflake.ID) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Int64())
	}
	return out
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func fromUnixSeconds(f float64) time.Time {
	secs := math.Floor(f)
	nanos := math.Round((f - secs) * float64(time.Second))
	return time.Unix(int64(secs), int64(nanos))
}
