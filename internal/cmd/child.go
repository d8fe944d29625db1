package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
	"github.com/Iron-Ham/lifespan/internal/logging"
)

// ExitError carries a child's non-zero exit code up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("child exited with status %d", e.Code)
}

// child is the wrapped command. It can be driven directly or through the
// lifecycle handshake with childApp.
type child struct {
	argv   []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	grace  time.Duration // wait after interrupt before killing
	logger *logging.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

func newChild(argv []string, stdin io.Reader, stdout, stderr io.Writer, logger *logging.Logger) *child {
	return &child{
		argv:   argv,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		grace:  10 * time.Second,
		logger: logger,
	}
}

// start launches the command. Calling start twice is an error.
func (c *child) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return errors.New("child already started")
	}

	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %s", c.argv[0])
	}

	c.cmd = cmd
	c.done = make(chan struct{})
	c.logger.Info("child started", "pid", cmd.Process.Pid, "command", c.argv[0])

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		c.waitErr = err
		c.mu.Unlock()
		close(c.done)
	}()
	return nil
}

// wait blocks until the command exits. If ctx ends first the command is
// stopped. It returns an *ExitError for a non-zero exit status.
func (c *child) wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return errors.New("child not started")
	}

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Info("stopping child", "reason", ctx.Err().Error())
		c.stop()
	}
	return c.result()
}

// stop interrupts the command and kills it if it outlives the grace period.
// It returns once the command has exited.
func (c *child) stop() {
	c.mu.Lock()
	cmd, done := c.cmd, c.done
	c.mu.Unlock()
	if cmd == nil {
		return
	}

	select {
	case <-done:
		return
	default:
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		c.logger.Debug("interrupt failed, killing child", "error", err.Error())
		_ = cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-time.After(c.grace):
		c.logger.Warn("child ignored interrupt, killing", "grace", c.grace.String())
		_ = cmd.Process.Kill()
		<-done
	}
}

// result maps the command's exit to an error.
func (c *child) result() error {
	c.mu.Lock()
	err := c.waitErr
	c.mu.Unlock()

	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				code = 128 + int(status.Signal())
			}
		}
		c.logger.Info("child exited", "code", code)
		return &ExitError{Code: code}
	}
	return err
}

// childApp drives a child through the lifecycle handshake: startup launches
// the command and shutdown stops it.
type childApp struct {
	child *child
}

// Process implements lifespan.Application.
func (a *childApp) Process(ctx context.Context, scope lifespan.Scope, receive lifespan.ReceiveFunc, send lifespan.SendFunc) error {
	if !scope.IsLifecycle() {
		return nil
	}

	for {
		msg, err := receive(ctx)
		if err != nil {
			return err
		}

		switch msg.Kind {
		case lifespan.KindStartup:
			reply := lifespan.Message{Kind: lifespan.KindStartupComplete}
			if err := a.child.start(); err != nil {
				reply = lifespan.Message{Kind: lifespan.KindStartupFailed, Detail: err.Error()}
			}
			if err := send(ctx, reply); err != nil {
				return err
			}
			if reply.Kind == lifespan.KindStartupFailed {
				return nil
			}
		case lifespan.KindShutdown:
			a.child.stop()
			return send(ctx, lifespan.Message{Kind: lifespan.KindShutdownComplete})
		default:
			a.child.stop()
			return errors.NewProtocolError("", string(msg.Kind))
		}
	}
}
