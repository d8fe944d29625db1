package exechook

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/lifespan/internal/config"
	lserrors "github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
	"github.com/Iron-Ham/lifespan/internal/testutil"
)

// logHook returns a hook whose commands append "<stage>-<name>" to log.
func logHook(name, log string) config.HookConfig {
	return config.HookConfig{
		Name:     name,
		Setup:    []string{"sh", "-c", "echo setup-" + name + " >> " + log},
		Teardown: []string{"sh", "-c", "echo teardown-" + name + " >> " + log},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Fields(string(data))
}

func TestSetup_RunsInOrderAndTearsDownInReverse(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)
	log := filepath.Join(t.TempDir(), "steps.log")

	r := New([]config.HookConfig{logHook("db", log), logHook("cache", log), logHook("queue", log)})
	stack, err := r.Setup(ctx)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if stack.Len() != 3 {
		t.Errorf("stack.Len() = %d, want 3", stack.Len())
	}

	if err := stack.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []string{"setup-db", "setup-cache", "setup-queue", "teardown-queue", "teardown-cache", "teardown-db"}
	if got := readLines(t, log); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("steps = %v, want %v", got, want)
	}
}

func TestSetup_FailureReturnsPartialStack(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)
	log := filepath.Join(t.TempDir(), "steps.log")

	broken := config.HookConfig{
		Name:     "db",
		Setup:    []string{"sh", "-c", "echo db unreachable >&2; exit 3"},
		Teardown: []string{"sh", "-c", "echo teardown-db >> " + log},
	}
	r := New([]config.HookConfig{logHook("cache", log), broken, logHook("queue", log)})

	stack, err := r.Setup(ctx)
	if err == nil {
		t.Fatal("Setup() should fail")
	}
	if !strings.Contains(err.Error(), "hook db setup") || !strings.Contains(err.Error(), "db unreachable") {
		t.Errorf("error = %q, want hook name and command output", err)
	}
	if stack == nil || stack.Len() != 1 {
		t.Fatalf("partial stack should hold the cache teardown only, got %v", stack)
	}

	if err := stack.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	want := []string{"setup-cache", "teardown-cache"}
	if got := readLines(t, log); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("steps = %v, want %v", got, want)
	}
}

func TestSetup_HookWithoutTeardown(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)

	r := New([]config.HookConfig{{Name: "warm", Setup: []string{"true"}}})
	stack, err := r.Setup(ctx)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if stack.Len() != 0 {
		t.Errorf("stack.Len() = %d, want 0", stack.Len())
	}
}

func TestSetup_Timeout(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)

	r := New([]config.HookConfig{{Name: "slow", Setup: []string{"sleep", "5"}, TimeoutMs: 50}})
	_, err := r.Setup(ctx)
	if !errors.Is(err, lserrors.ErrTimeout) {
		t.Fatalf("Setup() error = %v, want ErrTimeout", err)
	}
	var tErr *lserrors.TimeoutError
	if !errors.As(err, &tErr) || tErr.Operation != "hook slow setup" {
		t.Errorf("error = %v, want TimeoutError for hook slow setup", err)
	}
}

func TestSetup_DirAndEnv(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)
	dir := t.TempDir()

	r := New([]config.HookConfig{{
		Name:  "env",
		Setup: []string{"sh", "-c", `printf '%s' "$GREETING" > out.txt`},
		Dir:   dir,
		Env:   []string{"GREETING=hello"},
	}})
	if _, err := r.Setup(ctx); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("read out.txt: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("out.txt = %q, want hello", data)
	}
}

func TestSetup_MissingCommand(t *testing.T) {
	ctx := testutil.Context(t)

	r := New([]config.HookConfig{{Name: "ghost", Setup: []string{"lifespan-no-such-command-xyz"}}})
	_, err := r.Setup(ctx)
	if err == nil {
		t.Fatal("Setup() should fail for a missing command")
	}
	if !strings.Contains(err.Error(), "hook ghost setup") {
		t.Errorf("error = %q, want hook context", err)
	}
}

func TestSetup_DryRun(t *testing.T) {
	ctx := testutil.Context(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	var out bytes.Buffer
	r := New([]config.HookConfig{
		{Name: "db", Setup: []string{"touch", marker}, Teardown: []string{"rm", marker}},
		{Name: "cache", Setup: []string{"sh", "-c", "echo hi there"}},
	}, WithDryRun(&out))

	stack, err := r.Setup(ctx)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := stack.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("dry run executed a command")
	}

	want := "[dry-run] db setup: touch " + marker + "\n" +
		"[dry-run] cache setup: sh -c \"echo hi there\"\n" +
		"[dry-run] db teardown: rm " + marker + "\n"
	if out.String() != want {
		t.Errorf("dry-run output =\n%s\nwant\n%s", out.String(), want)
	}
}

func TestHook_SetupFailureBecomesStartupFailed(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)
	log := filepath.Join(t.TempDir(), "steps.log")

	r := New([]config.HookConfig{
		logHook("cache", log),
		{Name: "db", Setup: []string{"sh", "-c", "echo db unreachable >&2; exit 1"}},
	})
	hook := lifespan.NewHook(nil, lifespan.WithSetup(r.Setup))

	_, err := lifespan.Acquire(ctx, hook)
	if !errors.Is(err, lserrors.ErrStartupFailed) {
		t.Fatalf("Acquire() error = %v, want ErrStartupFailed", err)
	}
	var hsErr *lserrors.HandshakeError
	if !errors.As(err, &hsErr) || !strings.Contains(hsErr.Detail, "db unreachable") {
		t.Errorf("error = %v, want detail with the command output", err)
	}

	want := []string{"setup-cache", "teardown-cache"}
	if got := readLines(t, log); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("steps = %v, want %v", got, want)
	}
}

func TestHook_SessionRunsTeardownOnRelease(t *testing.T) {
	testutil.SkipIfNoShell(t)
	ctx := testutil.Context(t)
	log := filepath.Join(t.TempDir(), "steps.log")

	r := New([]config.HookConfig{logHook("db", log), logHook("cache", log)})
	err := lifespan.With(ctx, lifespan.NewHook(nil, lifespan.WithSetup(r.Setup)),
		func(ctx context.Context, app lifespan.Application) error {
			if got := readLines(t, log); len(got) != 2 {
				t.Errorf("steps inside scope = %v, want both setups", got)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}

	want := []string{"setup-db", "setup-cache", "teardown-cache", "teardown-db"}
	if got := readLines(t, log); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("steps = %v, want %v", got, want)
	}
}
