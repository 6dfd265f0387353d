// Package discord adapts a discordgo session to the team coordinator.
//
// A Bot owns the gateway session. It registers the slash commands in every
// guild it joins (or only in the configured guilds), translates interactions
// into coordinator calls and renders the results. Each interaction gets a
// guild-scoped view that answers member, channel and voice-state questions
// from the gateway cache, falls back to REST for members the cache does not
// hold, and performs member moves. REST failures are classified into the
// platform error kinds defined in internal/errors.
package discord
