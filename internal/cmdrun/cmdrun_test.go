package cmdrun

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesStdout(t *testing.T) {
	res := Run(context.Background(), []string{"echo", "hello"}, nil)
	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if strings.TrimSpace(res.Output) != "hello" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	res := Run(context.Background(), []string{"false"}, nil)
	if res.OK {
		t.Fatal("expected OK=false for a non-zero exit")
	}
}

func TestRunMissingExecutable(t *testing.T) {
	res := Run(context.Background(), []string{"definitely-not-a-real-binary-xyz"}, nil)
	if res.OK {
		t.Fatal("expected OK=false for a missing executable")
	}
}

func TestRunEmptyArgv(t *testing.T) {
	res := Run(context.Background(), nil, nil)
	if res.OK {
		t.Fatal("expected OK=false for empty argv")
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := Run(ctx, []string{"sleep", "5"}, nil)
	if res.OK {
		t.Fatal("expected OK=false when the context deadline is exceeded")
	}
}

func TestRunWireGuardAppliesEnvOverridesWithCallerPriority(t *testing.T) {
	res := RunWireGuard(context.Background(), []string{"sh", "-c", "echo $WG_QUICK_USERSPACE_IMPLEMENTATION:$CUSTOM"}, map[string]string{
		"CUSTOM":                             "value",
		"WG_QUICK_USERSPACE_IMPLEMENTATION": "overridden",
	})
	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if strings.TrimSpace(res.Output) != "overridden:value" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestMergeEnvAppendsOverrides(t *testing.T) {
	base := []string{"FOO=bar"}
	merged := mergeEnv(base, map[string]string{"BAZ": "qux"})
	if len(merged) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(merged), merged)
	}
}
