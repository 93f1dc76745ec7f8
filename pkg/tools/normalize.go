package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Normalize canonicalizes a batch of raw tool calls. Models and providers
// disagree about where the id, name and arguments live, so each property is
// resolved from an ordered list of candidate locations and the result always
// carries both the canonical Name/Args pair and the denormalized
// Function.Name/Function.Arguments pair.
//
// Normalize is idempotent: feeding its output back in yields the same batch.
func Normalize(rawCalls []any) []ToolCall {
	calls := make([]ToolCall, 0, len(rawCalls))
	for i, raw := range rawCalls {
		calls = append(calls, normalizeOne(raw, i))
	}
	return calls
}

// NormalizeCalls is a convenience wrapper for batches that are already typed.
func NormalizeCalls(calls []ToolCall) []ToolCall {
	raw := make([]any, len(calls))
	for i := range calls {
		raw[i] = calls[i]
	}
	return Normalize(raw)
}

func normalizeOne(raw any, index int) ToolCall {
	m := asMap(raw)

	name := stringField(m, "name")
	if name == "" {
		name = stringField(nested(m, "function"), "name")
	}
	if name == "" {
		name = "tool_call"
	}

	id := stringField(m, "id")
	if id == "" {
		// Position-based ids stay unique within one batch even when the
		// model omits them.
		id = fmt.Sprintf("%s_%d", name, index)
	}

	args, rawArgs := resolveArguments(m)

	arguments := rawArgs
	if arguments == "" {
		arguments = marshalArgs(args)
	}

	return ToolCall{
		ID:   id,
		Type: ToolTypeFunction,
		Name: name,
		Args: args,
		Function: FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// resolveArguments searches the candidate argument fields in order and
// returns a normalized object. Non-object JSON values are wrapped as
// {"value": ...}. A string that does not parse as JSON is kept verbatim in
// the denormalized form (second return value) with an empty object as the
// canonical form.
func resolveArguments(m map[string]any) (map[string]any, string) {
	var v any
	for _, key := range []string{"arguments", "args", "input"} {
		if cand, ok := m[key]; ok && cand != nil {
			v = cand
			break
		}
	}
	if v == nil {
		if cand, ok := nested(m, "function")["arguments"]; ok && cand != nil {
			v = cand
		}
	}

	switch t := v.(type) {
	case nil:
		return map[string]any{}, ""
	case string:
		if strings.TrimSpace(t) == "" {
			return map[string]any{}, ""
		}
		var parsed any
		if err := json.Unmarshal([]byte(t), &parsed); err != nil {
			// Unparseable arguments ride along untouched so the error is
			// visible downstream.
			return map[string]any{}, t
		}
		if obj, ok := parsed.(map[string]any); ok {
			return obj, ""
		}
		return map[string]any{"value": parsed}, ""
	case map[string]any:
		return t, ""
	default:
		return map[string]any{"value": t}, ""
	}
}

func asMap(raw any) map[string]any {
	switch t := raw.(type) {
	case map[string]any:
		return t
	case ToolCall:
		return toolCallMap(t)
	case *ToolCall:
		if t == nil {
			return map[string]any{}
		}
		return toolCallMap(*t)
	default:
		// Arbitrary structs go through a JSON round trip.
		b, err := json.Marshal(raw)
		if err != nil {
			return map[string]any{}
		}
		var m map[string]any
		if json.Unmarshal(b, &m) != nil {
			return map[string]any{}
		}
		return m
	}
}

func toolCallMap(tc ToolCall) map[string]any {
	m := map[string]any{
		"id":   tc.ID,
		"name": tc.Name,
		"function": map[string]any{
			"name":      tc.Function.Name,
			"arguments": tc.Function.Arguments,
		},
	}
	// Surface the denormalized arguments string first so that opaque
	// unparseable arguments survive re-normalization unchanged.
	if tc.Function.Arguments != "" {
		m["arguments"] = tc.Function.Arguments
	} else if tc.Args != nil {
		m["args"] = tc.Args
	}
	return m
}

func marshalArgs(args map[string]any) string {
	// encoding/json sorts map keys, so this is a stable canonical form.
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func nested(m map[string]any, key string) map[string]any {
	n, _ := m[key].(map[string]any)
	if n == nil {
		return map[string]any{}
	}
	return n
}

type signatureEntry struct {
	Name string `json:"name"`
	Args string `json:"args"`
}

// BuildSignature computes an order-independent signature for a batch of
// normalized calls, used for duplicate and repeat detection. Calls to the
// respond sentinel never count. Returns "" for a batch with nothing to sign.
func BuildSignature(calls []ToolCall) string {
	entries := make([]signatureEntry, 0, len(calls))
	for _, call := range calls {
		if IsRespond(call) {
			continue
		}
		entries = append(entries, signatureEntry{
			Name: call.Name,
			Args: marshalArgs(call.Args),
		})
	}
	if len(entries) == 0 {
		return ""
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Args < entries[j].Args
	})

	b, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(b)
}

// InvalidCall pairs a rejected call with a reason suitable for feeding back
// to the model as corrective context.
type InvalidCall struct {
	Call   ToolCall
	Reason string
}

// Validate partitions normalized calls into executable and rejected ones. A
// call is rejected when its name is blank, targets a tool that is not
// currently available, or carries a blank id.
func Validate(calls []ToolCall, allowedNames map[string]bool) (valid []ToolCall, invalid []InvalidCall) {
	for _, call := range calls {
		switch {
		case strings.TrimSpace(call.Name) == "":
			invalid = append(invalid, InvalidCall{Call: call, Reason: "Tool call is missing a tool name"})
		case !allowedNames[call.Name]:
			invalid = append(invalid, InvalidCall{Call: call, Reason: fmt.Sprintf("Tool %q is not available", call.Name)})
		case strings.TrimSpace(call.ID) == "":
			// Normalize synthesizes ids, but revalidate for callers that
			// skipped it.
			invalid = append(invalid, InvalidCall{Call: call, Reason: fmt.Sprintf("Tool call for %q is missing an id", call.Name)})
		default:
			valid = append(valid, call)
		}
	}
	return valid, invalid
}
