// Package services defines the error classification shared by every component
// of the conversion engine, plus the context keys used to correlate logs with
// jobs. Components wrap failures with one of the exported sentinels; the HTTP
// and IPC layers map the sentinel to a wire code via Classification.
package services
