// Package shutdown provides graceful shutdown for RetroState.
//
// A Handler waits for SIGINT, SIGTERM or an explicit Trigger, then runs
// the registered hooks in reverse registration order under a single
// timeout. The server registers its HTTP listener, reaper and storage
// engine so that in-flight requests finish before Badger is closed.
package shutdown
