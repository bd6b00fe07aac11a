package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without touching providers",
		Long: `Validate the configuration: parse the CUE sources, check declarations
against provider schemas, build the dependency graph, and evaluate policies
against the resulting plan. No provider calls are made.

Exits 3 when validation fails.`,
		Example: `  # Validate the default configuration
  groundwork validate

  # Validate a specific directory with an overlay
  groundwork validate -c deploy/ --overlay deploy/prod.yaml`,
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

			changes, err := engine.NewDiffer(rt.store, rt.registry, cmdLogger()).
				Diff(ctx, graph, engine.DiffOptions{})
			if err != nil {
				return err
			}

			plan, err := engine.NewPlanner().Plan(changes, graph)
			if err != nil {
				return err
			}

			if err := checkPolicies(ctx, plan); err != nil {
				return err
			}

			fmt.Printf("Configuration valid: %d resources, %d pending changes\n",
				len(rt.decls), len(plan.Entries))
			return nil
		},
	}

	return cmd
}
