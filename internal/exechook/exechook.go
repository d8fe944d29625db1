// Package exechook runs configured shell commands as lifecycle hooks.
//
// A Runner's Setup method is a lifespan.SetupFunc: it runs every hook's setup
// command in order and, for each one that succeeds, registers the hook's
// teardown command on the returned stack. Shutdown therefore tears hooks down
// in reverse order, and a failed setup still tears down the hooks that came
// before it.
package exechook

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/lifespan/internal/config"
	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
	"github.com/Iron-Ham/lifespan/internal/logging"
	"github.com/Iron-Ham/lifespan/internal/util"
)

// Stages of a hook.
const (
	StageSetup    = "setup"
	StageTeardown = "teardown"
)

// maxOutput caps how many characters of command output an error carries.
const maxOutput = 4096

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for command execution.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithDryRun makes the Runner print each command to w instead of running it.
func WithDryRun(w io.Writer) Option {
	return func(r *Runner) {
		r.dryRun = true
		r.out = w
	}
}

// Runner executes a list of hooks.
type Runner struct {
	hooks  []config.HookConfig
	logger *logging.Logger
	dryRun bool
	out    io.Writer
}

// New returns a Runner for hooks.
func New(hooks []config.HookConfig, opts ...Option) *Runner {
	r := &Runner{hooks: hooks}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NopLogger()
	}
	if r.out == nil {
		r.out = io.Discard
	}
	return r
}

// Hooks returns the configured hooks.
func (r *Runner) Hooks() []config.HookConfig {
	return r.hooks
}

// Setup runs every setup command in order. On failure it returns the stack
// holding the teardowns of the hooks that already succeeded, together with
// the error.
func (r *Runner) Setup(ctx context.Context) (*lifespan.TeardownStack, error) {
	stack := lifespan.NewTeardownStack(r.logger)

	for _, h := range r.hooks {
		if err := r.run(ctx, h, StageSetup, h.Setup); err != nil {
			return stack, err
		}
		if len(h.Teardown) == 0 {
			continue
		}
		stack.DeferNamed(h.Name, func(ctx context.Context) error {
			return r.run(ctx, h, StageTeardown, h.Teardown)
		})
	}

	return stack, nil
}

// run executes one command of a hook.
func (r *Runner) run(ctx context.Context, h config.HookConfig, stage string, argv []string) error {
	logger := r.logger.With("hook", h.Name, "stage", stage)

	if r.dryRun {
		_, err := fmt.Fprintf(r.out, "[dry-run] %s %s: %s\n", h.Name, stage, util.QuoteArgs(argv))
		return err
	}

	if timeout := h.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = h.Dir
	if len(h.Env) > 0 {
		cmd.Env = append(os.Environ(), h.Env...)
	}

	logger.Debug("running hook command", "argv", util.QuoteArgs(argv))
	started := time.Now()
	output, err := cmd.CombinedOutput()
	out := util.TruncateString(strings.TrimSpace(string(output)), maxOutput)

	if err != nil {
		op := fmt.Sprintf("hook %s %s", h.Name, stage)
		if ctx.Err() == context.DeadlineExceeded {
			logger.Warn("hook command timed out", "timeout", h.Timeout().String())
			return errors.NewTimeoutError(op, h.Timeout()).WithCause(err)
		}
		logger.Warn("hook command failed", "error", err.Error(), "output", out)
		if out != "" {
			return errors.Wrapf(err, "%s: %s", op, out)
		}
		return errors.Wrap(err, op)
	}

	logger.Info("hook command finished", "elapsed_ms", time.Since(started).Milliseconds())
	if out != "" {
		logger.Debug("hook command output", "output", out)
	}
	return nil
}
