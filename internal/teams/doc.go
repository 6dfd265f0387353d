// Package teams defines the red/blue team data model and the partition
// engine that splits a voice channel roster into two balanced teams.
//
// Identifiers are Discord snowflakes carried as [snowflake.ID]; the zero ID
// means "none" (no captain, no current voice channel).
//
// # Partitioning
//
// [Partition] is a pure function: it validates captains, shuffles the
// remaining members with the caller's *rand.Rand, and fills both teams up to
// floor(n/2) with the odd member going to a randomly chosen team. Given a
// seeded source the result is deterministic, which is how the tests drive it:
//
//	rng := rand.New(rand.NewPCG(1, 2))
//	split, err := teams.Partition(rng, roster, redCaptain, 0)
package teams
