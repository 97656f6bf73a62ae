package focus

import (
	"encoding/json"
	"strings"
	"time"
)

// Surfaces a focus can originate from.
const (
	ToolDesktop = "desktop"
	ToolCode    = "code"
)

// Focus statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Focus is one unit of attention tracking.
type Focus struct {
	ID          string    `json:"id" yaml:"id"`
	Topic       string    `json:"topic" yaml:"topic"`
	Context     string    `json:"context" yaml:"context"`
	Tool        string    `json:"tool" yaml:"tool"`
	Status      string    `json:"status" yaml:"status"`
	StartedAt   time.Time `json:"startedAt" yaml:"started_at"`
	CompletedAt time.Time `json:"completedAt,omitzero" yaml:"completed_at,omitempty"`
}

// IsActive reports whether f is the active focus.
func (f Focus) IsActive() bool {
	return f.Status == StatusActive
}

// timeLayouts are tried in order when reading timestamps from the wire.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime is lenient: anything it cannot read becomes the zero time.
func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// UnmarshalJSON accepts any timestamp format in timeLayouts and ignores
// timestamps it cannot parse.
func (f *Focus) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          string `json:"id"`
		Topic       string `json:"topic"`
		Context     string `json:"context"`
		Tool        string `json:"tool"`
		Status      string `json:"status"`
		StartedAt   string `json:"startedAt"`
		CompletedAt string `json:"completedAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*f = Focus{
		ID:          wire.ID,
		Topic:       wire.Topic,
		Context:     wire.Context,
		Tool:        wire.Tool,
		Status:      wire.Status,
		StartedAt:   parseTime(wire.StartedAt),
		CompletedAt: parseTime(wire.CompletedAt),
	}
	return nil
}

// CurrentFocus is the answer to "what am I working on".
type CurrentFocus struct {
	CurrentFocus  *Focus `json:"currentFocus" yaml:"current_focus"`
	RecentContext []any  `json:"recentContext" yaml:"recent_context"`
}

// EmptyCurrentFocus is the default: no focus and no recent context.
func EmptyCurrentFocus() CurrentFocus {
	return CurrentFocus{RecentContext: []any{}}
}

// SetFocusParams are the inputs to SetFocus. Empty Context stays empty and
// empty Tool means the configured default surface.
type SetFocusParams struct {
	Topic   string
	Context string
	Tool    string
}
