// Package engine manages the bridge's WebSocket session to the engine's
// command server and the request/reply correlation over it.
//
// # Session lifecycle
//
// Manager owns at most one Session:
//
//	disconnected -> connecting -> connected -> (failed | disconnected)
//
// Connect tears down any existing session, dials with the connect timeout and,
// when enabled, performs a hello/welcome handshake. A failed attempt leaves the
// manager disconnected with LastError set. An unexpected transport closure
// moves it to failed. There is no automatic reconnect.
//
// # Wire format
//
// Outbound:
//
//	{"id": "<uuid>", "type": "command", "command": "create_actor", "params": {...}}
//
// Inbound replies carry the same id:
//
//	{"id": "<uuid>", "status": "success", "result": {...}}
//	{"id": "<uuid>", "status": "error", "error": "..."}
//
// Inbound frames without an id are engine events. They are recorded in history
// and otherwise ignored.
//
// # Dispatch
//
// Dispatcher.Execute registers a pending call, writes the frame and waits for
// the reply with the same id, the timeout, the caller's context, or loss of
// the session. Replies may arrive in any order. Every frame is recorded as
// engine_outbound or engine_inbound; local failures are recorded as synthetic
// engine_inbound entries with "local": true.
package engine
