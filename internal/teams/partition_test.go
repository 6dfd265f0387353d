package teams

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
)

func ids(n int) []snowflake.ID {
	out := make([]snowflake.ID, n)
	for i := range out {
		out[i] = snowflake.ID(1000 + i)
	}
	return out
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestPartition_BalancedDisjointUnion(t *testing.T) {
	for n := 2; n <= 25; n++ {
		for seed := uint64(0); seed < 20; seed++ {
			roster := ids(n)
			split, err := Partition(seeded(seed), roster, 0, 0)
			if err != nil {
				t.Fatalf("n=%d seed=%d: unexpected error: %v", n, seed, err)
			}

			diff := len(split.Red) - len(split.Blue)
			if diff < -1 || diff > 1 {
				t.Fatalf("n=%d seed=%d: sizes %d/%d differ by more than one", n, seed, len(split.Red), len(split.Blue))
			}

			union := slices.Concat(split.Red, split.Blue)
			if len(union) != n {
				t.Fatalf("n=%d seed=%d: union has %d members, want %d", n, seed, len(union), n)
			}
			slices.Sort(union)
			if !slices.Equal(union, roster) {
				t.Fatalf("n=%d seed=%d: union %v != roster %v", n, seed, union, roster)
			}

			switch {
			case n%2 == 0 && split.Extra != "":
				t.Fatalf("n=%d: Extra = %q for even roster", n, split.Extra)
			case n%2 == 1 && len(split.Members(split.Extra)) != n/2+1:
				t.Fatalf("n=%d: Extra = %q but that team has %d members", n, split.Extra, len(split.Members(split.Extra)))
			}
		}
	}
}

func TestPartition_Captains(t *testing.T) {
	for n := 2; n <= 12; n++ {
		for seed := uint64(0); seed < 10; seed++ {
			roster := ids(n)
			red, blue := roster[n-1], roster[0]

			split, err := Partition(seeded(seed), roster, red, blue)
			if err != nil {
				t.Fatalf("n=%d: unexpected error: %v", n, err)
			}
			if !slices.Contains(split.Red, red) {
				t.Errorf("n=%d seed=%d: red captain missing from red team %v", n, seed, split.Red)
			}
			if !slices.Contains(split.Blue, blue) {
				t.Errorf("n=%d seed=%d: blue captain missing from blue team %v", n, seed, split.Blue)
			}
			if d := len(split.Red) - len(split.Blue); d < -1 || d > 1 {
				t.Errorf("n=%d seed=%d: unbalanced %d/%d", n, seed, len(split.Red), len(split.Blue))
			}
		}
	}

	t.Run("single captain", func(t *testing.T) {
		roster := ids(5)
		split, err := Partition(seeded(3), roster, 0, roster[2])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if split.Blue[0] != roster[2] {
			t.Errorf("Blue[0] = %v, want captain %v", split.Blue[0], roster[2])
		}
	})
}

func TestPartition_Deterministic(t *testing.T) {
	roster := ids(9)
	a, err := Partition(seeded(42), roster, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Partition(seeded(42), roster, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Red, b.Red) || !slices.Equal(a.Blue, b.Blue) || a.Extra != b.Extra {
		t.Errorf("same seed produced different splits: %+v vs %+v", a, b)
	}
}

func TestPartition_FiveMembers(t *testing.T) {
	// A..E, no captains: sizes {3,2} or {2,3}.
	roster := []snowflake.ID{1, 2, 3, 4, 5}
	seenExtra := map[Label]bool{}
	for seed := uint64(0); seed < 50; seed++ {
		split, err := Partition(seeded(seed), roster, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		r, b := len(split.Red), len(split.Blue)
		if !(r == 3 && b == 2 && split.Extra == Red) && !(r == 2 && b == 3 && split.Extra == Blue) {
			t.Fatalf("seed=%d: got %d/%d extra=%q", seed, r, b, split.Extra)
		}
		seenExtra[split.Extra] = true
	}
	if !seenExtra[Red] || !seenExtra[Blue] {
		t.Errorf("expected both teams to receive the odd member across seeds, got %v", seenExtra)
	}
}

func TestPartition_Duplicates(t *testing.T) {
	roster := []snowflake.ID{1, 2, 2, 3, 0, 1}
	split, err := Partition(seeded(1), roster, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(split.Red) + len(split.Blue); got != 3 {
		t.Errorf("expected 3 unique members, got %d", got)
	}
}

func TestPartition_InvalidInput(t *testing.T) {
	roster := ids(4)
	tests := []struct {
		name      string
		roster    []snowflake.ID
		red, blue snowflake.ID
		wantField string
	}{
		{"captains equal", roster, roster[0], roster[0], "blue_captain"},
		{"red captain absent", roster, 99, 0, "red_captain"},
		{"blue captain absent", roster, 0, 99, "blue_captain"},
		{"empty roster", nil, 0, 0, "roster"},
		{"single member", ids(1), 0, 0, "roster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Partition(seeded(0), tt.roster, tt.red, tt.blue)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestAssignment_All(t *testing.T) {
	a := Assignment{Origin: 1, Red: []snowflake.ID{10, 11}, Blue: []snowflake.ID{11, 12}}
	if got, want := a.All(), []snowflake.ID{10, 11, 12}; !slices.Equal(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}

	c := a.Clone()
	c.Red[0] = 99
	if a.Red[0] != 10 {
		t.Error("Clone() shares backing array with original")
	}
}

func TestLabel(t *testing.T) {
	if Red.Title() != "Red" || Blue.Title() != "Blue" {
		t.Errorf("Title() = %q/%q", Red.Title(), Blue.Title())
	}
	if Label("green").IsValid() {
		t.Error("green should not be a valid label")
	}
	if got := Mention(snowflake.ID(42)); got != "<@42>" {
		t.Errorf("Mention() = %q", got)
	}
	if got := (LocationRef{ID: 7}).Mention(); got != "<#7>" {
		t.Errorf("LocationRef.Mention() = %q", got)
	}
}
