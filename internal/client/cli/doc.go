// Package cli provides the interactive TechTrack command-line client.
//
// It wires configuration, the local database, the entity and session
// services, the connectivity monitor and the sync engine, and runs a REPL
// that works the same online and offline. Every change is written locally
// first and queued; the engine sends it when the server is reachable.
//
// Commands:
//   - add / update / delete / list / show records
//   - queue, sync, conflicts, discard to inspect and steer synchronization
//   - token, status, logout
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, runREPL and the command methods for details.
package cli
