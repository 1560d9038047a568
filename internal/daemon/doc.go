// Package daemon coordinates the long-running Elicit process.
//
// It wires configuration, the annotation store, the pipeline scheduler and
// the event hub into a single lifecycle, with flock-based locking to prevent
// multiple instances. The HTTP API lives here too: media registration and
// streaming, annotation submission and lookup, health, and the websocket
// event channel.
//
// Keep orchestration logic here. Stage execution belongs to pipeline and
// byte-range serving to mediastream; the daemon focuses on startup, shutdown
// and request routing.
package daemon
