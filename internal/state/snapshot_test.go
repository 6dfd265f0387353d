package state

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/teams"
)

func TestEncodeDecode(t *testing.T) {
	updated := time.Unix(1_718_000_000, 250_000_000)
	in := Empty()
	in.Assignments[42] = Record[teams.Assignment]{
		Value:     teams.Assignment{Origin: 42, Red: []snowflake.ID{1}, Blue: nil},
		UpdatedAt: updated,
	}
	in.Destinations[42] = Record[teams.Destinations]{
		Value:     teams.Destinations{Origin: 42, Red: 7, Blue: 8},
		UpdatedAt: updated,
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if out.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", out.Dropped)
	}

	a := out.Assignments[42]
	if a.Value.Origin != 42 || len(a.Value.Red) != 1 || len(a.Value.Blue) != 0 {
		t.Errorf("assignment = %+v", a.Value)
	}
	if !a.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", a.UpdatedAt, updated)
	}
	if d := out.Destinations[42]; d.Value != in.Destinations[42].Value {
		t.Errorf("destinations = %+v", d.Value)
	}
}

func TestEncode_EmptyTeamsAreArrays(t *testing.T) {
	in := Empty()
	in.Assignments[1] = Record[teams.Assignment]{Value: teams.Assignment{Origin: 1}, UpdatedAt: time.Unix(1, 0)}

	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Assignments[1]; !ok {
		t.Error("assignment with empty teams should survive a round trip")
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode([]byte(`{"version": 3}`)); !errors.Is(err, errors.ErrFormatMismatch) {
		t.Errorf("expected ErrFormatMismatch, got %v", err)
	}
	if _, err := Decode([]byte(`nope`)); !errors.Is(err, errors.ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestRecord_Expired(t *testing.T) {
	base := time.Unix(1000, 0)
	r := Record[int]{UpdatedAt: base}
	if r.Expired(base.Add(time.Hour), time.Hour) {
		t.Error("record exactly ttl old should not be expired")
	}
	if !r.Expired(base.Add(time.Hour+time.Nanosecond), time.Hour) {
		t.Error("record older than ttl should be expired")
	}
}

func TestReadFile_Missing(t *testing.T) {
	c, err := ReadFile(t.TempDir() + "/absent.json")
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if len(c.Assignments) != 0 || len(c.Destinations) != 0 {
		t.Errorf("expected empty contents, got %+v", c)
	}
}
