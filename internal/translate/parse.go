// ABOUTME: Extracts a structured command from free-form LLM output
// ABOUTME: A strict JSON stage runs first; a lenient fallback stage recovers partial or prose answers

package translate

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/2389/engine-bridge/internal/command"
)

// OutcomeKind tags the result of Parse.
type OutcomeKind int

const (
	OutcomeUnparseable OutcomeKind = iota
	OutcomeStrict
	OutcomeFallback
)

// Method names the stage that produced a command.
type Method string

const (
	MethodStrict   Method = "strict"
	MethodFallback Method = "fallback"
)

// Confidence grades an extracted command.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Outcome is the result of Parse. Command is only meaningful when Kind is
// not OutcomeUnparseable.
type Outcome struct {
	Kind    OutcomeKind
	Command command.Command
}

// Method returns the stage that produced the outcome.
func (o Outcome) Method() Method {
	if o.Kind == OutcomeStrict {
		return MethodStrict
	}
	return MethodFallback
}

// Confidence is high for strict matches and low otherwise.
func (o Outcome) Confidence() Confidence {
	if o.Kind == OutcomeStrict {
		return ConfidenceHigh
	}
	return ConfidenceLow
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)```")

// Parse extracts a command from raw. cat is used by the fallback stage to
// recognise command names in prose and may be nil.
func Parse(raw string, cat *command.Catalog) Outcome {
	if cmd, ok := parseStrict(raw); ok {
		return Outcome{Kind: OutcomeStrict, Command: cmd}
	}
	if cmd, ok := parseFallback(raw, cat); ok {
		return Outcome{Kind: OutcomeFallback, Command: cmd}
	}
	return Outcome{Kind: OutcomeUnparseable}
}

// parseStrict tries fenced code blocks, then balanced top-level JSON values.
func parseStrict(raw string) (command.Command, bool) {
	var candidates []string
	for _, m := range fenceRe.FindAllStringSubmatch(raw, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, balancedValues(raw)...)

	for _, c := range candidates {
		var v any
		if err := json.Unmarshal(jsonc.ToJSON([]byte(c)), &v); err != nil {
			continue
		}
		if cmd, ok := commandFromValue(v); ok {
			return cmd, true
		}
	}
	return command.Command{}, false
}

// balancedValues returns every complete top-level {...} or [...] span in s,
// ignoring brackets inside JSON strings.
func balancedValues(s string) []string {
	var out []string
	for pos := 0; pos < len(s); {
		var (
			depth    int
			start    = -1
			inString bool
			escaped  bool
		)
		for i := pos; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				if depth > 0 {
					inString = true
				}
			case '{', '[':
				if depth == 0 {
					start = i
				}
				depth++
			case '}', ']':
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
		if depth == 0 || start < 0 {
			break
		}
		// An opener that never closed; rescan from just after it.
		pos = start + 1
	}
	return out
}

// commandFromValue accepts an object with a non-empty string "command", or
// an array whose first element is such an object.
func commandFromValue(v any) (command.Command, bool) {
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return command.Command{}, false
		}
		v = arr[0]
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return command.Command{}, false
	}
	name, ok := obj["command"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return command.Command{}, false
	}

	params := obj["parameters"]
	if params == nil {
		params = obj["params"]
	}
	switch p := params.(type) {
	case nil:
		return command.New(strings.TrimSpace(name), nil), true
	case map[string]any:
		return command.New(strings.TrimSpace(name), p), true
	default:
		return command.Command{}, false
	}
}

// parseFallback probes JSON-looking fragments leniently, then scans prose
// for a known command name and key/value tokens.
func parseFallback(raw string, cat *command.Catalog) (command.Command, bool) {
	for i := strings.IndexByte(raw, '{'); i >= 0; {
		if cmd, ok := probeFragment(raw[i:]); ok {
			return cmd, true
		}
		next := strings.IndexByte(raw[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	if cat != nil {
		return scanTokens(raw, cat)
	}
	return command.Command{}, false
}

// probeFragment reads "command" and "parameters" from possibly truncated JSON.
func probeFragment(frag string) (command.Command, bool) {
	name := gjson.Get(frag, "command")
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return command.Command{}, false
	}

	params := gjson.Get(frag, "parameters")
	if !params.Exists() {
		params = gjson.Get(frag, "params")
	}
	out := map[string]any{}
	if params.IsObject() {
		params.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = value.Value()
			return true
		})
	}
	return command.New(strings.TrimSpace(name.Str), out), true
}

var tokenValue = `("[^"]*"|'[^']*'|\[[^\]]*\]|[^\s,;)]+)`

// scanTokens finds the first catalog command named in s and collects
// `param: value` or `param=value` tokens for that command's parameters.
func scanTokens(s string, cat *command.Catalog) (command.Command, bool) {
	names := cat.Names()
	if len(names) == 0 {
		return command.Command{}, false
	}
	// Longest first so create_actor wins over a hypothetical create.
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	nameRe := regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)

	m := nameRe.FindStringSubmatchIndex(s)
	if m == nil {
		return command.Command{}, false
	}
	name := s[m[2]:m[3]]
	spec, _ := cat.Lookup(name)

	params := map[string]any{}
	rest := s[m[3]:]
	for _, p := range spec.Params {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(p.Name) + `['"]?\s*[:=]\s*` + tokenValue)
		if pm := re.FindStringSubmatch(rest); pm != nil {
			params[p.Name] = tokenToValue(pm[1])
		}
	}
	return command.New(name, params), true
}

// tokenToValue converts a scanned token into a JSON-compatible value.
func tokenToValue(tok string) any {
	tok = strings.TrimSpace(tok)
	if len(tok) >= 2 && (tok[0] == '"' || tok[0] == '\'') && tok[len(tok)-1] == tok[0] {
		return tok[1 : len(tok)-1]
	}
	if strings.HasPrefix(tok, "[") {
		var arr []any
		if err := json.Unmarshal(jsonc.ToJSON([]byte(tok)), &arr); err == nil {
			return arr
		}
		return tok
	}
	switch strings.ToLower(tok) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return strings.TrimRight(tok, ".")
}
