package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/telemetry"
)

var (
	// Global flags
	configPaths  []string
	overlayPaths []string
	statePath    string
	policyPaths  []string
	verbose      bool
	jsonOutput   bool
	logFormat    string
	traceEnabled bool
)

// activeTracer is installed by the root command's pre-run when tracing is
// enabled and shut down after the command returns.
var activeTracer *telemetry.Tracer

// exitCodeError carries a process exit code through the cobra error path.
// Commands use it for outcomes that are not failures, like "no changes".
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string {
	return e.msg
}

func exitWithCode(code int, msg string) error {
	return &exitCodeError{code: code, msg: msg}
}

// ExitCode maps a command error to the process exit code: 0 for nil, the
// carried code for coded outcomes, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}
	return 1
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)

	// Flush spans even when the command failed or the context was
	// cancelled.
	if activeTracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := activeTracer.Shutdown(shutdownCtx); serr != nil {
			log.Warn().Err(serr).Msg("Failed to shut down tracer")
		}
	}
	return err
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "groundwork",
		Short: "Groundwork - declarative resource reconciler",
		Long: `Groundwork reconciles declared resources against recorded state.

Declarations are written in CUE, diffed against a durable SQLite state
store, ordered into a dependency-respecting plan, checked against policies,
and applied through pluggable providers.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			if logFormat != "" {
				level := zerolog.GlobalLevel().String()
				logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
					Level:  level,
					Format: logFormat,
					Output: "stderr",
				})
				if err != nil {
					return err
				}
				log.Logger = logger
			}
			if traceEnabled {
				tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
					Enabled:      true,
					Exporter:     "stdout",
					SamplingRate: 1.0,
				}, "groundwork", version, "")
				if err != nil {
					return err
				}
				activeTracer = tracer
			}
			return nil
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", []string{"groundwork.cue"}, "configuration files or directories")
	rootCmd.PersistentFlags().StringSliceVar(&overlayPaths, "overlay", nil, "YAML overlay files unified into the configuration")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state database path (default from workspace, else groundwork.db)")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (default console)")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "emit OpenTelemetry spans to stdout")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStateCommand())

	return rootCmd
}
