// Package journal persists committed edit transactions to disk and
// replays them to rebuild a store.
//
// The journal is an append-oriented log over a pebble key-value store.
// Each committed transaction is encoded as one TLV packet holding the
// full before/after feature images of every directive, geometry in WKB
// and attributes in the typed JSON envelope, so replay is pure state
// application with identifiers pinned. Undo and redo write status
// markers next to the packet instead of rewriting it; replay skips
// transactions whose latest marker says undone.
//
// Appending runs inside the engine's commit critical section: an
// append error vetoes the commit. Every append and marker is also
// broadcast to attached packet hoses, so live consumers see the same
// bytes the log keeps.
package journal
