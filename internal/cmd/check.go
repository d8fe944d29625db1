package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/lifespan/internal/exechook"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and rehearse the hooks",
	Long: `Check loads and validates the configuration, then performs one startup and
shutdown handshake through the configured hooks without running a command.

By default the hook commands are only printed. Use --dry-run=false to run
them for real.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Bool("dry-run", true, "print hook commands instead of running them")
	checkCmd.Flags().Duration("startup-timeout", 0, "bound on hook setup (overrides lifespan.startup_timeout_ms)")
	checkCmd.Flags().Duration("shutdown-timeout", 0, "bound on hook teardown (overrides lifespan.shutdown_timeout_ms)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := newRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = rt.close(context.WithoutCancel(ctx)) }()

	applyTimeoutFlags(cmd, rt)

	opts := []exechook.Option{exechook.WithLogger(rt.logger)}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		opts = append(opts, exechook.WithDryRun(out))
	}
	runner := exechook.New(rt.cfg.Hooks, opts...)

	fmt.Fprintf(out, "config ok: %d hook(s)\n", len(runner.Hooks()))

	// The rehearsal always answers the handshake in-process; there is no
	// command to forward it to.
	hook := lifespan.NewHook(nil,
		lifespan.WithSetup(runner.Setup),
		lifespan.WithHookLogger(rt.logger),
		lifespan.WithHookBus(rt.bus),
	)

	started := time.Now()
	sess, err := lifespan.Acquire(ctx, hook, rt.sessionOptions()...)
	if err != nil {
		rt.logFailure("check failed", err)
		return err
	}
	fmt.Fprintf(out, "startup complete in %s\n", time.Since(started).Round(time.Millisecond))

	started = time.Now()
	if err := sess.Release(ctx); err != nil {
		rt.logFailure("check failed", err)
		return err
	}
	fmt.Fprintf(out, "shutdown complete in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}
