package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/lifespan/internal/exechook"
	"github.com/Iron-Ham/lifespan/internal/lifespan"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command between hook setup and teardown",
	Long: `Run executes every configured hook's setup command, then the given command,
then the hooks' teardown commands in reverse order.

If a setup command fails, the command is not started and the hooks that were
already set up are torn down. The command's exit status becomes lifespan's
exit status. SIGINT and SIGTERM are passed on to the command before teardown.

With --own=false the command itself takes part in the lifecycle handshake:
it is started on startup and stopped on shutdown, after the hooks' setup and
before the process exits.`,
	Example: `  lifespan run -- ./server --port 8080
  lifespan run --startup-timeout 1m -- make integration-test`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("own", true, "answer the lifecycle handshake in lifespan instead of the command")
	runCmd.Flags().Duration("startup-timeout", 0, "bound on hook setup (overrides lifespan.startup_timeout_ms)")
	runCmd.Flags().Duration("shutdown-timeout", 0, "bound on hook teardown (overrides lifespan.shutdown_timeout_ms)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = rt.close(context.WithoutCancel(ctx)) }()

	applyTimeoutFlags(cmd, rt)

	runner := exechook.New(rt.cfg.Hooks, exechook.WithLogger(rt.logger))
	ch := newChild(args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), rt.logger.WithPhase("child"))

	own := rt.cfg.Lifespan.OwnProtocol
	var inner lifespan.Application
	if !own {
		inner = &childApp{child: ch}
	}

	err = lifespan.With(ctx, rt.hook(inner, runner.Setup), func(ctx context.Context, _ lifespan.Application) error {
		if own {
			if err := ch.start(); err != nil {
				return err
			}
		}
		return ch.wait(ctx)
	}, rt.sessionOptions()...)
	rt.logFailure("run failed", err)
	return err
}

// applyTimeoutFlags overrides the configured bounds with explicit flags.
func applyTimeoutFlags(cmd *cobra.Command, rt *runtime) {
	if cmd.Flags().Changed("startup-timeout") {
		d, _ := cmd.Flags().GetDuration("startup-timeout")
		rt.cfg.Lifespan.StartupTimeoutMs = int(d / time.Millisecond)
	}
	if cmd.Flags().Changed("shutdown-timeout") {
		d, _ := cmd.Flags().GetDuration("shutdown-timeout")
		rt.cfg.Lifespan.ShutdownTimeoutMs = int(d / time.Millisecond)
	}
}
