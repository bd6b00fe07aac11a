package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile string
		dotFile string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the pending changes",
		Long: `Compute the ordered set of changes that apply would perform.

The plan compares declarations against recorded state, orders operations so
dependencies are satisfied, and prints the result without calling any
provider mutation. Exits 0 when changes are pending, 2 when there is
nothing to do.`,
		Example: `  # Show pending changes
  groundwork plan

  # Refresh provider state before diffing
  groundwork plan --refresh

  # Save the plan and the dependency graph
  groundwork plan --out plan.json --dot graph.dot`,
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
				Diff(ctx, graph, engine.DiffOptions{Refresh: refresh})
			if err != nil {
				return err
			}

			plan, err := engine.NewPlanner().Plan(changes, graph)
			if err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(graph.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write graph: %w", err)
				}
				log.Info().Str("path", dotFile).Msg("Dependency graph written")
			}
			if outFile != "" {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal plan: %w", err)
				}
				if err := os.WriteFile(outFile, data, 0o644); err != nil {
					return fmt.Errorf("failed to write plan: %w", err)
				}
				log.Info().Str("path", outFile).Msg("Plan written")
			}

			printPlan(plan)

			if len(plan.Entries) == 0 {
				return exitWithCode(2, "")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON to this file")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the dependency graph in DOT format to this file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read provider state before diffing")

	return cmd
}

func printPlan(plan *engine.Plan) {
	if jsonOutput {
		printJSON(plan)
		return
	}

	if len(plan.Entries) == 0 {
		fmt.Println("No changes. State matches the declarations.")
		return
	}

	for _, entry := range plan.Entries {
		marker := "~"
		switch entry.Op {
		case engine.OperationCreate:
			marker = "+"
		case engine.OperationDelete:
			marker = "-"
		}
		suffix := ""
		if entry.Deposed {
			suffix = " (deposed)"
		} else if entry.Drifted {
			suffix = " (drifted)"
		}
		fmt.Printf("  %s %s %s (%s)%s\n", marker, entry.Op, entry.Name, entry.Type, suffix)
	}

	s := plan.Summary
	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to delete\n",
		s.ToCreate, s.ToUpdate, s.ToReplace, s.ToDelete)
}
