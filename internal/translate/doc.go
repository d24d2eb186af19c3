// Package translate turns natural-language instructions into engine commands
// using an LLM.
//
// The model's answer is untrusted text. Parse extracts a command in two stages:
//
//  1. Strict: fenced code blocks, then balanced top-level JSON values, each
//     normalised with jsonc (comments and trailing commas removed). A match is
//     an object with a non-empty "command" and an object "parameters" (or
//     "params"). Strict matches have high confidence.
//  2. Fallback: lenient gjson probing of every "{" fragment, which tolerates
//     truncated output, then a scan of the prose for a known command name and
//     key: value tokens. Fallback matches have low confidence.
//
// Extracted commands must name a catalog command and use only its declared
// parameters, otherwise the translation fails with KindInvalidCommand.
//
// Backend failures are KindBackendUnreachable for transport errors and an
// expired request timeout, KindBackendError when the backend answered with an
// error, and KindCanceled when the caller gave up.
package translate
