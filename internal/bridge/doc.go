// Package bridge is the HTTP API of engine-bridge.
//
// # Endpoints
//
//	GET  /api/status          status snapshot
//	GET  /api/models          models installed on the Ollama server (?raw=1 adds the raw body)
//	POST /api/connect         {url} opens the engine session (empty url: configured default)
//	POST /api/disconnect      closes the engine session
//	POST /api/process-nl      {text, model} translates text, then executes the command
//	POST /api/send-command    {command, parameters} executes a command directly
//	GET  /api/commands        the command catalog
//	GET  /api/history         ?since=N&limit=M sequence-based history page
//	GET  /api/history/stream  Server-Sent Events feed of history entries
//	GET  /health              liveness
//	GET  /health/ready        200 only while an engine session is live
//
// # Errors
//
// Failures are JSON bodies carrying a human-readable message and a kind.
// Malformed requests get 400 with kind "validation" and never reach the
// engine. Commands issued with no session get 409; a command timeout gets
// 504; a dropped session or a failing LLM backend gets 502; a request the
// client abandoned gets 503; an LLM answer that holds no usable command gets
// 422 with the raw answer. Only kind "backend_unreachable" marks the LLM as
// unavailable in the status snapshot.
package bridge
