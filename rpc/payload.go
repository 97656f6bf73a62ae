package rpc

import "encoding/json"

// Payload is the JSON object carried by the first text item of a tool
// response.
type Payload map[string]any

// Has reports whether key is present, even if its value is null.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Object returns the value at key if it is a JSON object.
func (p Payload) Object(key string) (Payload, bool) {
	m, ok := p[key].(map[string]any)
	return Payload(m), ok
}

// Array returns the value at key if it is a JSON array.
func (p Payload) Array(key string) ([]any, bool) {
	a, ok := p[key].([]any)
	return a, ok
}

// Bool reports whether the value at key is the boolean true.
func (p Payload) Bool(key string) bool {
	b, ok := p[key].(bool)
	return ok && b
}

// String returns the value at key if it is a string.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Path walks nested objects and returns the value at the last key.
func (p Payload) Path(keys ...string) (any, bool) {
	var cur any = map[string]any(p)
	for _, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// As converts a decoded JSON value into T by round-tripping it through
// encoding/json. It fails for nil.
func As[T any](v any) (T, bool) {
	var out T
	if v == nil {
		return out, false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}
