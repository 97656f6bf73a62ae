package focus

import "github.com/nwant/thinking-partner-focus/rpc"

// Each decoder recognizes one response layout. Lists are tried in order and
// the first decoder that reports ok wins.

type currentDecoder func(rpc.Payload) (CurrentFocus, bool)

type focusDecoder func(rpc.Payload) (*Focus, bool)

var currentDecoders = []currentDecoder{
	decodeCurrentNested,
	decodeCurrentFlat,
}

var setDecoders = []focusDecoder{
	decodeSetFocusKey,
	decodeSetCurrentFocusKey,
	decodeSetNestedContext,
	decodeSetFlat,
	decodeSetBare,
}

// historyKeys are the names servers have used for the history array.
var historyKeys = []string{"focusHistory", "history", "focus_history", "foci", "items"}

// nestedKeys name the object wrapping the payload in the success-flag layouts.
var nestedKeys = []string{"context", "result"}

// {"success": true, "context": {"currentFocus": ..., "recentDecisions": [...]}}
// with "result" accepted in place of "context".
func decodeCurrentNested(p rpc.Payload) (CurrentFocus, bool) {
	if !p.Bool("success") {
		return CurrentFocus{}, false
	}
	ctx, ok := nestedObject(p)
	if !ok {
		return CurrentFocus{}, false
	}
	return CurrentFocus{
		CurrentFocus:  asFocus(ctx["currentFocus"]),
		RecentContext: arrayOrEmpty(ctx, "recentDecisions"),
	}, true
}

// {"currentFocus": ..., "recentContext": [...]}
func decodeCurrentFlat(p rpc.Payload) (CurrentFocus, bool) {
	if !p.Has("currentFocus") && !p.Has("recentContext") {
		return CurrentFocus{}, false
	}
	return CurrentFocus{
		CurrentFocus:  asFocus(p["currentFocus"]),
		RecentContext: arrayOrEmpty(p, "recentContext"),
	}, true
}

// {"success": true, "focus": {...}}
func decodeSetFocusKey(p rpc.Payload) (*Focus, bool) {
	if !p.Bool("success") {
		return nil, false
	}
	return focusAt(p, "focus")
}

// {"success": true, "currentFocus": {...}}
func decodeSetCurrentFocusKey(p rpc.Payload) (*Focus, bool) {
	if !p.Bool("success") {
		return nil, false
	}
	return focusAt(p, "currentFocus")
}

// {"success": true, "context": {"currentFocus": {...}}}
func decodeSetNestedContext(p rpc.Payload) (*Focus, bool) {
	if !p.Bool("success") {
		return nil, false
	}
	ctx, ok := nestedObject(p)
	if !ok {
		return nil, false
	}
	return focusAt(ctx, "currentFocus")
}

// {"currentFocus": {...}}
func decodeSetFlat(p rpc.Payload) (*Focus, bool) {
	return focusAt(p, "currentFocus")
}

// The focus object itself.
func decodeSetBare(p rpc.Payload) (*Focus, bool) {
	if _, ok := p.String("id"); !ok {
		return nil, false
	}
	if _, ok := p.String("topic"); !ok {
		return nil, false
	}
	f := asFocus(map[string]any(p))
	return f, f != nil
}

// decodeHistory looks for the first non-empty history array, first under
// the nested context or result objects and then at the top level.
func decodeHistory(p rpc.Payload) ([]Focus, bool) {
	scopes := make([]rpc.Payload, 0, len(nestedKeys)+1)
	for _, key := range nestedKeys {
		if obj, ok := p.Object(key); ok {
			scopes = append(scopes, obj)
		}
	}
	scopes = append(scopes, p)

	for _, scope := range scopes {
		for _, key := range historyKeys {
			raw, ok := scope.Array(key)
			if !ok || len(raw) == 0 {
				continue
			}
			if history, ok := rpc.As[[]Focus](raw); ok && len(history) > 0 {
				return history, true
			}
		}
	}
	return nil, false
}

// decodeCurrentAsHistory turns the current focus into a one-element history.
func decodeCurrentAsHistory(p rpc.Payload) ([]Focus, bool) {
	current, ok := firstCurrent(p)
	if !ok || current.CurrentFocus == nil {
		return nil, false
	}
	return []Focus{*current.CurrentFocus}, true
}

func firstCurrent(p rpc.Payload) (CurrentFocus, bool) {
	for _, decode := range currentDecoders {
		if current, ok := decode(p); ok {
			return current, true
		}
	}
	return CurrentFocus{}, false
}

func firstFocus(p rpc.Payload) (*Focus, bool) {
	for _, decode := range setDecoders {
		if f, ok := decode(p); ok {
			return f, true
		}
	}
	return nil, false
}

func nestedObject(p rpc.Payload) (rpc.Payload, bool) {
	for _, key := range nestedKeys {
		if obj, ok := p.Object(key); ok {
			return obj, true
		}
	}
	return nil, false
}

func focusAt(p rpc.Payload, key string) (*Focus, bool) {
	f := asFocus(p[key])
	return f, f != nil
}

// asFocus returns nil unless v is an object that reads as a Focus.
func asFocus(v any) *Focus {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	f, ok := rpc.As[Focus](obj)
	if !ok {
		return nil
	}
	return &f
}

func arrayOrEmpty(p rpc.Payload, key string) []any {
	if arr, ok := p.Array(key); ok {
		return arr
	}
	return []any{}
}
