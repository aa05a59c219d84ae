package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCmd(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the offline mutation queue",
	}
	cmd.AddCommand(newQueueListCmd(state), newQueuePruneCmd(state), newQueueMarkCmd(state))
	return cmd
}

func newQueueListCmd(state *cli) *cobra.Command {
	var (
		table  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := bootstrapRuntime(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Shutdown(cmd.Context()) }()

			entries := stack.Queue.Entries()
			if table != "" {
				entries = stack.Queue.GetPendingChanges(table)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTABLE\tTYPE\tRECORD\tSTATUS\tRETRIES\tTIMESTAMP")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					e.ID, e.Table, e.Type, e.RecordID, e.Status, e.RetryCount, e.Timestamp.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "only show pending changes for this table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newQueuePruneCmd(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove changes already confirmed as synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := bootstrapRuntime(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Shutdown(cmd.Context()) }()

			removed, err := stack.Queue.PruneSynced(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d synced entries\n", removed)
			return nil
		},
	}
}

func newQueueMarkCmd(state *cli) *cobra.Command {
	var cause string

	cmd := &cobra.Command{
		Use:   "mark <id> <syncing|synced|failed>",
		Short: "Transition a queued change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := bootstrapRuntime(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Shutdown(cmd.Context()) }()

			id := args[0]
			ctx := cmd.Context()
			switch strings.ToLower(args[1]) {
			case "syncing":
				err = stack.Queue.MarkSyncing(ctx, id)
			case "synced":
				err = stack.Queue.MarkSynced(ctx, id)
			case "failed":
				err = stack.Queue.MarkFailed(ctx, id, cause)
			default:
				return fmt.Errorf("unknown status %q", args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s marked %s\n", id, strings.ToLower(args[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&cause, "error", "", "failure description recorded with failed")
	return cmd
}
