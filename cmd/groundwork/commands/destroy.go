package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/engine"
	"github.com/groundwork-io/groundwork/pkg/telemetry"
)

func newDestroyCommand() *cobra.Command {
	var (
		autoApprove bool
		parallelism int
		maxRetries  int
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every managed resource",
		Long: `Plan and execute the deletion of all resources in the state store.

Deletions run in reverse dependency order using the dependencies captured in
each state record, so a resource is removed before anything it depends on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			// Diffing an empty model against the state store yields a
			// delete for every record.
			model, err := engine.LoadDeclarations(nil, rt.registry)
			if err != nil {
				return err
			}
			graph, err := engine.NewGraphBuilder().Build(model)
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
				Diff(ctx, graph, engine.DiffOptions{})
			if err != nil {
				return err
			}

			plan, err := engine.NewPlanner().Plan(changes, graph)
			if err != nil {
				return err
			}

			if len(plan.Entries) == 0 {
				fmt.Println("No resources to destroy.")
				return exitWithCode(2, "")
			}

			if err := checkPolicies(ctx, plan); err != nil {
				return err
			}

			printPlan(plan)
			if !autoApprove {
				if !confirm("\nDestroy all resources above? Only 'yes' approves: ") {
					fmt.Println("Destroy cancelled.")
					return exitWithCode(1, "")
				}
			}

			metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:   true,
				Namespace: "groundwork",
			})
			if err != nil {
				return err
			}

			executor := engine.NewExecutor(rt.store, rt.registry, cmdLogger(), metrics, engine.ExecutorOptions{
				Parallelism: parallelism,
				MaxRetries:  maxRetries,
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
	cmd.Flags().IntVar(&parallelism, "parallelism", 1, "max concurrent operations")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "retry attempts per operation for transient provider errors")

	return cmd
}
