package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/engine"
	"github.com/groundwork-io/groundwork/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		autoApprove bool
		refresh     bool
		dryRun      bool
		parallelism int
		maxRetries  int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the pending changes",
		Long: `Compute the plan and execute it under the run lock.

Each operation writes an intent marker before the provider call and commits
its record immediately after, so an interrupted run can be resumed safely.
Transient and throttled provider errors are retried with backoff; other
failures stop dispatch and the run reports what succeeded, failed, and was
skipped.

Exits 0 on full success, 1 on failures or partial application, 2 when there
was nothing to do.`,
		Example: `  # Plan and apply with an approval prompt
  groundwork apply

  # Non-interactive apply
  groundwork apply --auto-approve

  # Refresh provider state first, apply four entries at a time
  groundwork apply --refresh --parallelism 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			_, graph, err := rt.buildGraph()
			if err != nil {
				return err
			}

			owner := lockOwner()
			if err := rt.store.AcquireLock(ctx, owner); err != nil {
				return err
			}
			defer func() {
				// Release even when the run context was cancelled.
				if err := rt.store.ReleaseLock(context.WithoutCancel(ctx), owner); err != nil {
					log.Warn().Err(err).Msg("Failed to release run lock")
				}
			}()

			changes, err := engine.NewDiffer(rt.store, rt.registry, cmdLogger()).
				Diff(ctx, graph, engine.DiffOptions{Refresh: refresh})
			if err != nil {
				return err
			}

			plan, err := engine.NewPlanner().Plan(changes, graph)
			if err != nil {
				return err
			}

			if len(plan.Entries) == 0 {
				fmt.Println("No changes. State matches the declarations.")
				return exitWithCode(2, "")
			}

			if err := checkPolicies(ctx, plan); err != nil {
				return err
			}

			printPlan(plan)
			if !autoApprove && !dryRun {
				if !confirm("\nApply these changes? Only 'yes' approves: ") {
					fmt.Println("Apply cancelled.")
					return exitWithCode(1, "")
				}
			}

			metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:       true,
				ListenAddress: metricsAddr,
				Path:          "/metrics",
				Namespace:     "groundwork",
			})
			if err != nil {
				return err
			}
			if server := metrics.StartServer(log.Logger); server != nil {
				defer server.Close()
			}

			executor := engine.NewExecutor(rt.store, rt.registry, cmdLogger(), metrics, engine.ExecutorOptions{
				Parallelism: parallelism,
				MaxRetries:  maxRetries,
				DryRun:      dryRun,
			})

			result, err := executor.Apply(ctx, plan)
			if err != nil {
				return err
			}
			metrics.RecordRunCompleted(string(result.Status), result.Duration)

			printResult(result)
			return runExitStatus(result.Status)
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip approval prompt")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read provider state before diffing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "walk the plan without provider calls or state writes")
	cmd.Flags().IntVar(&parallelism, "parallelism", 1, "max concurrent operations")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "retry attempts per operation for transient provider errors")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address during the run")

	return cmd
}

func lockOwner() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

func printResult(result *engine.ApplyResult) {
	if jsonOutput {
		printJSON(result)
		return
	}

	succeeded, failed, skipped := 0, 0, 0
	for _, r := range result.Results {
		switch r.Status {
		case engine.EntryStatusSucceeded:
			succeeded++
		case engine.EntryStatusFailed:
			failed++
			if r.Error != nil {
				fmt.Fprintf(os.Stderr, "  failed %s %s: %s\n", r.Op, r.Name, r.Error.Message)
			}
		case engine.EntryStatusSkipped:
			skipped++
		}
	}

	fmt.Printf("\nRun %s: %s. %d succeeded, %d failed, %d skipped (%.1fs)\n",
		result.RunID, result.Status, succeeded, failed, skipped, result.Duration.Seconds())
}

func runExitStatus(status engine.RunStatus) error {
	switch status {
	case engine.RunStatusSucceeded:
		return nil
	case engine.RunStatusNoChanges:
		return exitWithCode(2, "")
	default:
		return exitWithCode(1, "")
	}
}
