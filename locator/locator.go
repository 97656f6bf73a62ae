// Package locator finds an interpreter able to run the context server by
// probing an ordered list of candidates.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nwant/thinking-partner-focus/exec"
	"github.com/nwant/thinking-partner-focus/logger"
)

// ErrBinaryNotFound is returned when no candidate exists and runs.
var ErrBinaryNotFound = errors.New("no usable interpreter found")

// StatFunc matches os.Stat.
type StatFunc func(name string) (os.FileInfo, error)

// Locator probes candidates with a trivial --version invocation.
type Locator struct {
	candidates   []string
	executor     exec.CommandExecutor
	stat         StatFunc
	probeTimeout time.Duration
	log          *slog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithExecutor replaces the command executor used for probes.
func WithExecutor(e exec.CommandExecutor) Option {
	return func(l *Locator) { l.executor = e }
}

// WithStat replaces the existence check for absolute candidates.
func WithStat(fn StatFunc) Option {
	return func(l *Locator) { l.stat = fn }
}

// WithProbeTimeout bounds each --version probe. Zero means no bound.
func WithProbeTimeout(d time.Duration) Option {
	return func(l *Locator) { l.probeTimeout = d }
}

// New creates a Locator over candidates, tried in order.
func New(candidates []string, opts ...Option) *Locator {
	l := &Locator{
		candidates: append([]string(nil), candidates...),
		executor:   exec.NewRealExecutor(),
		stat:       os.Stat,
		log:        logger.WithComponent("locator"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Candidates returns the probe order.
func (l *Locator) Candidates() []string {
	return append([]string(nil), l.candidates...)
}

// Locate returns the first candidate that exists and runs. It fails with
// ErrBinaryNotFound once every candidate has been rejected.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	for _, candidate := range l.candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := l.probe(ctx, candidate); err != nil {
			l.log.Debug("interpreter candidate rejected", "candidate", candidate, "error", err)
			continue
		}
		l.log.Info("interpreter found", "path", candidate)
		return candidate, nil
	}
	return "", fmt.Errorf("%w (tried %s)", ErrBinaryNotFound, strings.Join(l.candidates, ", "))
}

// probe checks existence for absolute paths, then runs --version and returns
// the first line of its output.
func (l *Locator) probe(ctx context.Context, candidate string) (string, error) {
	if filepath.IsAbs(candidate) {
		info, err := l.stat(candidate)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", candidate)
		}
	}

	if l.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.probeTimeout)
		defer cancel()
	}

	out, err := l.executor.Output(ctx, candidate, "--version")
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	line = strings.TrimSpace(line)
	if len(line) > 100 {
		line = line[:100] + "..."
	}
	return line
}

// CheckResult describes one probed candidate.
type CheckResult struct {
	Candidate string
	Found     bool
	Version   string
	Error     error
}

// Check probes every candidate without stopping at the first success.
func (l *Locator) Check(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(l.candidates))
	for i, candidate := range l.candidates {
		version, err := l.probe(ctx, candidate)
		results[i] = CheckResult{
			Candidate: candidate,
			Found:     err == nil,
			Version:   version,
			Error:     err,
		}
	}
	return results
}

// FormatCheckResults renders check results for display. The first usable
// candidate is marked as selected.
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("Interpreter candidates:\n")
	selected := false
	for _, r := range results {
		status := "✗"
		if r.Found {
			status = "✓"
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Candidate)
		switch {
		case r.Found && !selected:
			selected = true
			if r.Version != "" {
				fmt.Fprintf(&sb, " (%s)", r.Version)
			}
			sb.WriteString(" [selected]")
		case r.Found && r.Version != "":
			fmt.Fprintf(&sb, " (%s)", r.Version)
		case !r.Found && r.Error != nil:
			fmt.Fprintf(&sb, " [%v]", r.Error)
		}
		sb.WriteString("\n")
	}

	if !selected {
		sb.WriteString("  no usable interpreter\n")
	}
	return sb.String()
}
