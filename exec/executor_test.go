package exec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRealExecutor_Run(t *testing.T) {
	executor := NewRealExecutor()

	stdout, stderr, err := executor.Run(context.Background(), "echo", "v20.11.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(stdout) != "v20.11.1\n" {
		t.Errorf("expected 'v20.11.1\\n', got %q", string(stdout))
	}
	if len(stderr) != 0 {
		t.Errorf("expected empty stderr, got %q", string(stderr))
	}
}

func TestRealExecutor_MissingBinary(t *testing.T) {
	executor := NewRealExecutor()

	_, err := executor.Output(context.Background(), "/nonexistent/interpreter-binary", "--version")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestRealExecutor_OutputIncludesStderr(t *testing.T) {
	executor := NewRealExecutor()

	_, err := executor.Output(context.Background(), "sh", "-c", "echo broken install >&2; exit 3")
	if err == nil {
		t.Fatal("expected non-zero exit error")
	}
	if !strings.Contains(err.Error(), "broken install") {
		t.Errorf("error should carry stderr, got %v", err)
	}
}

func TestMockExecutor_ExactMatch(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddExactMatch("node", []string{"--version"}, MockResponse{Stdout: []byte("v22.3.0\n")})

	stdout, _, err := mock.Run(context.Background(), "node", "--version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(stdout) != "v22.3.0\n" {
		t.Errorf("got %q", stdout)
	}

	calls := mock.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "node" || len(calls[0].Args) != 1 || calls[0].Args[0] != "--version" {
		t.Errorf("unexpected call record: %+v", calls[0])
	}
}

func TestMockExecutor_RuleOrder(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddNameMatch("/usr/bin/node", MockResponse{Stdout: []byte("first")})
	mock.AddExactMatch("/usr/bin/node", []string{"--version"}, MockResponse{Stdout: []byte("second")})

	out, err := mock.Output(context.Background(), "/usr/bin/node", "--version")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "first" {
		t.Errorf("first registered rule should win, got %q", out)
	}
}

func TestMockExecutor_ErrorWithStderr(t *testing.T) {
	mock := NewMockExecutor(nil)
	exitErr := errors.New("exit status 1")
	mock.AddNameMatch("node", MockResponse{Stderr: []byte("dyld: library not loaded\n"), Err: exitErr})

	_, err := mock.Output(context.Background(), "node", "--version")
	if !errors.Is(err, exitErr) {
		t.Fatalf("expected wrapped exit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "dyld: library not loaded") {
		t.Errorf("error should include stderr, got %q", err.Error())
	}
}

func TestMockExecutor_Unmatched(t *testing.T) {
	mock := NewMockExecutor(nil)

	out, err := mock.Output(context.Background(), "anything")
	if err != nil || out != nil {
		t.Errorf("unmatched command should succeed empty, got %q, %v", out, err)
	}
}

func TestMockExecutor_Fallback(t *testing.T) {
	inner := NewMockExecutor(nil)
	inner.AddNameMatch("node", MockResponse{Stdout: []byte("from fallback")})
	outer := NewMockExecutor(inner)

	out, err := outer.Output(context.Background(), "node", "--version")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "from fallback" {
		t.Errorf("got %q", out)
	}
	if len(inner.GetCalls()) != 1 {
		t.Error("fallback should record the delegated call")
	}
}

func TestMockExecutor_ClearCalls(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.Run(context.Background(), "node", "--version")
	mock.ClearCalls()

	if n := len(mock.GetCalls()); n != 0 {
		t.Errorf("expected no calls after ClearCalls, got %d", n)
	}
}

func TestMockExecutor_Concurrent(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddNameMatch("node", MockResponse{Stdout: []byte("v20")})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mock.Run(context.Background(), "node", "--version")
		}()
	}
	wg.Wait()

	if n := len(mock.GetCalls()); n != 20 {
		t.Errorf("expected 20 calls, got %d", n)
	}
}
