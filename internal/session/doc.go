// Package session provides the in-memory conversation session store.
//
// A session is a bounded, owned conversational context keyed by an opaque
// UUID. The [Store] owns all session and message state: history is a sliding
// window over human/assistant pairs, idle sessions expire after a timeout,
// and creating past capacity evicts the least recently active session.
//
// Key operations:
//
//   - Lifecycle: [Store.GetOrCreate], [Store.Delete], [Store.SweepExpired]
//   - Messages: [Store.Append], [Store.History]
//   - Reporting: [Store.List], [Store.Stats]
//
// # Concurrency
//
// Store is safe for concurrent use. A single mutex guards the session map;
// it is held only for map lookup/insert/evict and in-memory message appends,
// never across model or retrieval I/O. History returns defensive copies.
//
// # Ownership
//
// Every non-creating operation checks the caller's owner identity against the
// session owner and fails with [ErrNotAuthorized] on mismatch. A session is
// reachable only through its ID.
package session
