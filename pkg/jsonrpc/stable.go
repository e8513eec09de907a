package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// StableKey normalizes a raw JSON value into a comparison key: plain strings
// are used verbatim, everything else is re-serialized with object members in
// lexicographic key order (arrays keep their order). Two semantically equal
// responses from different providers produce the same key regardless of the
// field ordering each provider happened to emit. Numbers are kept as their
// source literals so values beyond float64 precision neither merge nor split.
func StableKey(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(canonicalize(v))
	if err != nil {
		return "invalid"
	}
	return string(b)
}

// canonicalize rebuilds the decoded value bottom-up. encoding/json emits map
// members sorted by key, so re-marshalling the rebuilt value yields the
// canonical form. json.Number leaves marshalling untouched.
func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return v
	}
}
