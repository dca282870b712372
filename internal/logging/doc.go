// Package logging builds the slog loggers used across caddis and defines the
// standardized structured field keys shared by the daemon, the engine, and the
// CLI. Console output uses a compact human-readable handler; JSON output is
// intended for log shippers.
package logging
