// Package ollama is a small client for the Ollama HTTP API.
//
// Only the calls the bridge needs are implemented: streamed chat
// (POST /api/chat with "stream": true, newline-delimited JSON chunks),
// the model list (GET /api/tags) and a reachability probe.
//
// Transport failures wrap ErrUnreachable. Non-2xx responses are *StatusError.
package ollama
