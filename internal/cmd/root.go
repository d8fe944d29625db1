package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/lifespan/internal/config"
	"github.com/Iron-Ham/lifespan/internal/errors"
	"github.com/Iron-Ham/lifespan/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "lifespan",
	Short: "Run lifecycle hooks around a process",
	Long: `Lifespan runs configured setup hooks before a command starts and their
teardowns, in reverse order, after it exits. Hooks are driven through the
startup/shutdown lifecycle handshake, so a failing setup aborts the run and
anything already set up is torn down again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	reportError(rootCmd.ErrOrStderr(), err)
	return 1
}

// reportError prints err with a hint derived from its classification.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	switch {
	case errors.IsHandshakeError(err) && !errors.IsUserFacing(err):
		fmt.Fprintln(w, "The command or one of its hooks broke the lifecycle protocol. This is a bug in that program.")
	case errors.IsRetryable(err):
		fmt.Fprintln(w, "This failure may be transient. Running the command again may succeed.")
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lifespan version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lifespan %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/lifespan/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-dir", "", "write lifespan.log into this directory instead of stderr")
}

// bindFlags ties flags to their config keys.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	_ = viper.BindPFlag("lifespan.own_protocol", runCmd.Flags().Lookup("own"))
}

func initConfig() {
	bindFlags()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LIFESPAN")
	// e.g., LIFESPAN_LOGGING_LEVEL for logging.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the command logger. Without a log directory it writes to
// stderr, as text when stderr is a terminal and JSON otherwise.
func newLogger(cfg config.LoggingConfig, stderr io.Writer) (*logging.Logger, error) {
	if cfg.Dir != "" {
		return logging.NewLogger(cfg.Dir, cfg.Level)
	}

	text := false
	switch strings.ToLower(cfg.Format) {
	case "text":
		text = true
	case "json":
	default:
		if f, ok := stderr.(*os.File); ok {
			text = term.IsTerminal(int(f.Fd()))
		}
	}
	return logging.NewConsoleLogger(stderr, cfg.Level, text), nil
}
