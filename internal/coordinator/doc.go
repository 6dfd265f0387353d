// Package coordinator implements the four team commands on top of the
// partition engine, the state store and the relocation orchestrator:
//
//   - RandomTeams splits the caller's voice channel into red and blue and
//     records the split against that channel.
//   - MoveTeams moves the recorded split into two destination channels and
//     records where each team went.
//   - Reconvene brings everyone from the recorded destinations back to the
//     caller's channel.
//   - RandomWinner picks one eligible member of the caller's channel.
//
// The coordinator never talks to the chat platform directly. Callers pass a
// guild-scoped Platform, which the Discord adapter implements and tests fake.
//
// Caller mistakes are returned as *errors.ValidationError whose Message is
// ready to show to the user. A missing record is a *errors.NotFoundError
// matching errors.ErrNoRecord.
package coordinator
