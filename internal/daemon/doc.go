// Package daemon coordinates the long-running serving process: it enforces
// single-instance execution with a lock file, owns the HTTP conversion API,
// and runs the stale workspace sweeper. Control-plane callers (the IPC
// server, CLI) go through the Daemon rather than touching the engine or
// registry directly.
package daemon
