package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetforge/conductor/pkg/model"
)

// ExtractToolCalls recovers tool calls from a model response using a
// three-tier pipeline (spec.md §4.6 step 1): prefer the structured
// tool_calls the provider returned; otherwise look inside a fenced code
// block for Python call-expression lines; otherwise scan the raw text
// line by line for the same shape. Tiers 2 and 3 both parse a call
// expression — name(args) — the way the original inline-call scanner does:
// ast.parse the line as an expression, then ast.literal_eval each
// positional argument and keyword value. Every tier produces the same
// []model.ToolCall shape so downstream validation/execution doesn't care
// which tier matched.
func ExtractToolCalls(structured []model.ToolCall, text string) []model.ToolCall {
	if len(structured) > 0 {
		return structured
	}
	if calls := extractFencedBlock(text); len(calls) > 0 {
		return calls
	}
	if calls := extractPlainLine(text); len(calls) > 0 {
		return calls
	}
	return nil
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:tool|python)?\\s*\\n(.*?)\\n```")

func extractFencedBlock(text string) []model.ToolCall {
	match := fencedBlockRE.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return parseLiteralCalls(match[1])
}

func extractPlainLine(text string) []model.ToolCall {
	return parseLiteralCalls(text)
}

// parseLiteralCalls scans every line of text for a call-expression shape
// and evaluates it, accumulating one model.ToolCall per matching line. A
// line that isn't a bare call expression (prose, a partial thought) is
// silently skipped rather than aborting the whole scan.
func parseLiteralCalls(text string) []model.ToolCall {
	var calls []model.ToolCall
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, args, kwargs, ok := parseCallExpr(line)
		if !ok {
			continue
		}
		raw, err := encodeCall(name, args, kwargs)
		if err != nil {
			continue
		}
		calls = append(calls, model.ToolCall{Name: name, Arguments: raw})
	}
	return calls
}

var callExprRE = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\((.*)\)$`)

// parseCallExpr parses a single line shaped like a Python call expression,
// e.g. assign_task('frontdev', 't', 0) or confirm_task_complete(), into its
// function name, positional arguments, and keyword arguments.
func parseCallExpr(line string) (name string, args []any, kwargs map[string]any, ok bool) {
	m := callExprRE.FindStringSubmatch(line)
	if m == nil {
		return "", nil, nil, false
	}
	name = m[1]
	kwargs = make(map[string]any)

	inner := strings.TrimSpace(m[2])
	if inner == "" {
		return name, nil, kwargs, true
	}

	for _, part := range splitTopLevel(inner) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if kv := splitKeyValue(part, '='); kv != nil && isIdentifier(strings.TrimSpace(kv[0])) {
			val, err := evalLiteral(strings.TrimSpace(kv[1]))
			if err != nil {
				return "", nil, nil, false
			}
			kwargs[strings.TrimSpace(kv[0])] = val
			continue
		}
		val, err := evalLiteral(part)
		if err != nil {
			return "", nil, nil, false
		}
		args = append(args, val)
	}
	return name, args, kwargs, true
}

// positionalParams names the fields each known tool's positional
// arguments bind to, in order, matching the canonical JSON shape the
// structured tool-call tier already produces (so decode logic downstream
// never needs to know which tier matched).
var positionalParams = map[string][]string{
	"assign_task":           {"role", "description", "sequence"},
	"raise_callback":        {"message", "callback_type"},
	"confirm_task_complete": {"summary", "deliverables"},
	"audit_files":           {"file_paths", "description", "focus_areas"},
}

// encodeCall maps a parsed call's positional and keyword arguments onto
// field names and marshals them to the JSON shape a structured tool call
// would have carried.
func encodeCall(name string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	fields := make(map[string]any, len(args)+len(kwargs))
	names := positionalParams[name]
	for i, v := range args {
		if i < len(names) {
			fields[names[i]] = v
		} else {
			fields[fmt.Sprintf("arg%d", i)] = v
		}
	}
	for k, v := range kwargs {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// splitTopLevel splits s on commas that sit outside any nested (), [], {},
// or quoted string, the way a Python tokenizer would see an argument list.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote && !isEscaped(s, i) {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if rest := s[start:]; strings.TrimSpace(rest) != "" {
		parts = append(parts, rest)
	}
	return parts
}

// splitKeyValue splits s at the first top-level occurrence of sep (outside
// any nested bracket or quoted string), returning nil if sep never
// appears at the top level.
func splitKeyValue(s string, sep byte) []string {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote && !isEscaped(s, i) {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}

// isEscaped reports whether the byte at index i in s is preceded by an odd
// number of backslashes (and so is escaped rather than a literal quote
// boundary).
func isEscaped(s string, i int) bool {
	count := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		count++
	}
	return count%2 == 1
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isAlpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if i > 0 && !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

// evalLiteral evaluates a single Python literal expression: a quoted
// string, an int or float, True/False/None, or a nested list/tuple/dict of
// the same — the subset ast.literal_eval accepts, which is what the
// original inline-call scanner uses to evaluate each argument.
func evalLiteral(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty literal")
	case s == "None":
		return nil, nil
	case s == "True":
		return true, nil
	case s == "False":
		return false, nil
	case len(s) >= 2 && (s[0] == '\'' || s[0] == '"'):
		return evalStringLiteral(s)
	case len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']':
		return evalSequenceLiteral(s[1 : len(s)-1])
	case len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')':
		return evalSequenceLiteral(s[1 : len(s)-1])
	case len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}':
		return evalDictLiteral(s[1 : len(s)-1])
	default:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unsupported literal: %s", raw)
	}
}

func evalStringLiteral(s string) (string, error) {
	if len(s) < 2 || s[len(s)-1] != s[0] {
		return "", fmt.Errorf("malformed string literal: %s", s)
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(body[i])
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func evalSequenceLiteral(inner string) ([]any, error) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return []any{}, nil
	}
	var out []any
	for _, part := range splitTopLevel(inner) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := evalLiteral(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func evalDictLiteral(inner string) (map[string]any, error) {
	out := make(map[string]any)
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return out, nil
	}
	for _, part := range splitTopLevel(inner) {
		kv := splitKeyValue(part, ':')
		if kv == nil {
			return nil, fmt.Errorf("malformed dict entry: %s", part)
		}
		key, err := evalLiteral(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, err
		}
		keyStr, ok := key.(string)
		if !ok {
			keyStr = fmt.Sprint(key)
		}
		val, err := evalLiteral(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, err
		}
		out[keyStr] = val
	}
	return out, nil
}
