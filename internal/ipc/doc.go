// Package ipc exposes daemon control via JSON-RPC over a Unix domain socket.
// The CLI talks to a running daemon through this socket; the HTTP API stays
// reserved for conversion traffic.
package ipc
