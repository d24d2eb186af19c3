// Package status builds the aggregate status snapshot clients poll.
//
// A snapshot combines the engine session state, whether the Ollama backend
// answered its last probe, and the tail of the history log. Reachability is
// cached for a TTL; an expired cache starts one background probe
// (deduplicated with singleflight) and the previous value is served meanwhile.
package status
