package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/nwant/thinking-partner-focus/focus"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutput(raw string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", outputText:
		return outputText, nil
	case outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", raw)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format outputFormat, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%s is not a structured format", format)
	}
}

type styles struct {
	title     lipgloss.Style
	topic     lipgloss.Style
	context   lipgloss.Style
	meta      lipgloss.Style
	active    lipgloss.Style
	completed lipgloss.Style
	empty     lipgloss.Style
	ok        lipgloss.Style
	bad       lipgloss.Style
	section   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		topic:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		context:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		active:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		completed: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		empty:     lipgloss.NewStyle().Faint(true),
		ok:        lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:   lipgloss.NewStyle().MarginTop(1),
	}
}

// relativeTime renders t the way a list view would: "just now", "5m ago",
// "3h ago", "2d ago", and a date after a week.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Local().Format("2006-01-02")
	}
}

func (s styles) focusLine(f focus.Focus, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(s.topic.Render(f.Topic))
	if f.Context != "" {
		sb.WriteString("  ")
		sb.WriteString(s.context.Render(f.Context))
	}

	status := s.active
	if f.Status == focus.StatusCompleted {
		status = s.completed
	}
	meta := []string{relativeTime(f.StartedAt, now)}
	if f.Tool != "" {
		meta = append(meta, f.Tool)
	}
	fmt.Fprintf(&sb, "\n  %s %s", s.meta.Render(strings.Join(meta, " · ")), status.Render("["+f.Status+"]"))
	if f.ID != "" {
		fmt.Fprintf(&sb, "\n  %s", s.meta.Render("id "+f.ID))
	}
	return sb.String()
}

func (s styles) renderCurrent(current focus.CurrentFocus, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(s.title.Render("Current Focus"))
	sb.WriteString("\n")
	if current.CurrentFocus == nil {
		sb.WriteString(s.empty.Render("No active focus. Set a focus to get started."))
		return sb.String()
	}
	sb.WriteString(s.focusLine(*current.CurrentFocus, now))
	if n := len(current.RecentContext); n > 0 {
		fmt.Fprintf(&sb, "\n  %s", s.meta.Render(fmt.Sprintf("%d recent decisions", n)))
	}
	return sb.String()
}

func (s styles) renderHistory(history []focus.Focus, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(s.title.Render("Focus History"))
	if len(history) == 0 {
		sb.WriteString("\n")
		sb.WriteString(s.empty.Render("No previous foci."))
		return sb.String()
	}
	for _, f := range history {
		sb.WriteString("\n")
		sb.WriteString(s.focusLine(f, now))
	}
	return sb.String()
}

// visibleHistory drops the current focus, sorts newest first and applies
// limit when it is positive.
func visibleHistory(history []focus.Focus, current *focus.Focus, limit int) []focus.Focus {
	out := make([]focus.Focus, 0, len(history))
	for _, f := range history {
		if current != nil && f.ID == current.ID {
			continue
		}
		out = append(out, f)
	}
	slices.SortStableFunc(out, func(a, b focus.Focus) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
