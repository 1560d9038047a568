// Package events fans annotation job state changes out to connected
// observers.
//
// The Hub keeps no history. An observer sees only events published while it
// is attached, and a delivery failure detaches it. WebSocketObserver is the
// production observer; it buffers outgoing events and writes them from its
// own goroutine so Publish never waits on the network.
package events
