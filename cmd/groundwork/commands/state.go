package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/config"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage the state store",
	}

	cmd.AddCommand(newStateListCommand())
	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateRunsCommand())
	cmd.AddCommand(newStateUnlockCommand())

	return cmd
}

func newStateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all resources in the state store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, config.WorkspaceConfig{})
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListRecords(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(records)
				return nil
			}

			if len(records) == 0 {
				fmt.Println("State is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tPROVIDER ID\tLAST APPLIED\tPENDING")
			for _, record := range records {
				pending := record.Pending
				if pending == "" {
					pending = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					record.Name, record.Type, record.ProviderID,
					record.LastApplied.Format("2006-01-02 15:04:05"), pending)
			}
			return w.Flush()
		},
	}
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the state record for one resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, config.WorkspaceConfig{})
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no state record for %q", args[0])
			}

			printJSON(record)
			return nil
		},
	}
}

func newStateRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, config.WorkspaceConfig{})
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(runs)
				return nil
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tENTRIES")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1fs\t%d\n",
					run.RunID, run.Status,
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Duration.Seconds(), len(run.Results))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "max runs to show")

	return cmd
}

func newStateUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Force-release a stale run lock",
		Long: `Release the run lock regardless of who holds it.

Only use this after a crashed run left the lock behind. Releasing a lock
held by a live run allows concurrent applies against the same state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, config.WorkspaceConfig{})
			if err != nil {
				return err
			}
			defer store.Close()

			holder, err := store.LockHolder(ctx)
			if err != nil {
				return err
			}
			if holder == "" {
				fmt.Println("State is not locked.")
				return nil
			}

			if err := store.ForceReleaseLock(ctx); err != nil {
				return err
			}
			fmt.Printf("Released lock held by %s.\n", holder)
			return nil
		},
	}
}
