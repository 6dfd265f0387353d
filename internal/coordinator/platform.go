package coordinator

import (
	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/relocate"
	"github.com/Iron-Ham/teambot/internal/resolve"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// Platform is the chat platform as seen from a single guild.
type Platform interface {
	resolve.Directory
	relocate.Mover

	// GuildID identifies the guild, for logging.
	GuildID() snowflake.ID

	// Channel returns the voice channel with the given ID. It reports false
	// when the channel does not exist, is not a voice channel, or belongs to
	// another guild.
	Channel(id snowflake.ID) (teams.LocationRef, bool)

	// Occupants returns the members currently connected to the voice
	// channel, bots included.
	Occupants(location snowflake.ID) []teams.MemberRef
}
