// Package state holds the per-origin team memory: the most recent team
// assignment and the most recent destination channels for each origin voice
// channel, each stamped with the time it was committed.
//
// Records older than the retention window are logically absent. They are
// purged lazily on read, by [Store.PruneExpired], and by the background
// [Pruner]. Every mutation writes the full snapshot to disk atomically
// (temp file in the same directory, then rename); a failed write is logged
// and the in-memory state stays authoritative.
//
// The snapshot is JSON:
//
//	{
//	  "version": 1,
//	  "assignments": {
//	    "<originId>": {"redMemberIds": [1, 2], "blueMemberIds": [3], "updatedAt": 1718000000.5}
//	  },
//	  "destinations": {
//	    "<originId>": {"redTarget": 10, "blueTarget": 11, "updatedAt": 1718000100.25}
//	  }
//	}
//
// A file with any other version is ignored as a whole. Individual malformed or
// expired entries are dropped on load and the cleaned snapshot is written back.
package state
