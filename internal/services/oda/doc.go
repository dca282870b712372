// Package oda wraps the ODA File Converter command-line tool. The converter is
// a GUI batch application: it needs a DISPLAY, works on whole folders rather
// than streams, and is known to exit zero without producing output. This
// package is the only place that knows its invocation contract; everything
// else treats it as a black box.
//
// Prefer this package over ad-hoc exec.Command usage when interacting with
// the converter.
package oda
