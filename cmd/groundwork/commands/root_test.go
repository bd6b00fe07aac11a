package commands

import (
	"context"
	"errors"
	"testing"
)

func TestExitCode(t *testing.T) {
	if code := ExitCode(nil); code != 0 {
		t.Errorf("Expected 0 for nil error, got %d", code)
	}
	if code := ExitCode(exitWithCode(2, "")); code != 2 {
		t.Errorf("Expected 2 for no-changes outcome, got %d", code)
	}
	if code := ExitCode(exitWithCode(3, "validation failed")); code != 3 {
		t.Errorf("Expected 3 for validation outcome, got %d", code)
	}
	if code := ExitCode(errors.New("boom")); code != 1 {
		t.Errorf("Expected 1 for plain error, got %d", code)
	}
}

func TestApplyCommandRetryFlag(t *testing.T) {
	cmd := newApplyCommand()

	flag := cmd.Flags().Lookup("max-retries")
	if flag == nil {
		t.Fatal("Expected apply to expose --max-retries")
	}
	if flag.DefValue != "3" {
		t.Errorf("Expected default of 3 retries, got %s", flag.DefValue)
	}
}

func TestDestroyCommandRetryFlag(t *testing.T) {
	cmd := newDestroyCommand()

	flag := cmd.Flags().Lookup("max-retries")
	if flag == nil {
		t.Fatal("Expected destroy to expose --max-retries")
	}
	if flag.DefValue != "3" {
		t.Errorf("Expected default of 3 retries, got %s", flag.DefValue)
	}
}

func TestRootPreRunInstallsTracer(t *testing.T) {
	root := newRootCommand("dev", "none", "none")
	if root.PersistentFlags().Lookup("trace") == nil {
		t.Fatal("Expected root to expose --trace")
	}

	traceEnabled = true
	defer func() {
		traceEnabled = false
		if activeTracer != nil {
			_ = activeTracer.Shutdown(context.Background())
			activeTracer = nil
		}
	}()

	if err := root.PersistentPreRunE(root, nil); err != nil {
		t.Fatalf("PersistentPreRunE failed: %v", err)
	}
	if activeTracer == nil {
		t.Fatal("Expected tracer installed when tracing is enabled")
	}
}
