package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/migration"
)

func newMigrateCmd(state *cli) *cobra.Command {
	var (
		owner      string
		force      bool
		clearAfter bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move an owner's legacy flat-store data into the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := bootstrapRuntime(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Shutdown(cmd.Context()) }()

			opts := migration.Options{
				SkipIfCompleted:  state.cfg.Migration.SkipIfCompleted && !force,
				ClearLegacyAfter: state.cfg.Migration.ClearLegacyAfter,
				Timeout:          state.cfg.Migration.Timeout,
			}
			if cmd.Flags().Changed("clear-legacy") {
				opts.ClearLegacyAfter = clearAfter
			}

			result, err := stack.Migration.Migrate(cmd.Context(), owner, opts)
			if err != nil {
				return err
			}
			state.log.Info("migration finished",
				zap.String("owner_id", owner),
				zap.Bool("success", result.Success),
				zap.Bool("skipped", result.Skipped),
			)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("migration failed: %s", result.Summary)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner whose legacy data is migrated")
	cmd.Flags().BoolVar(&force, "force", false, "migrate even when a previous run completed")
	cmd.Flags().BoolVar(&clearAfter, "clear-legacy", false, "remove legacy entries after a successful migration")
	_ = cmd.MarkFlagRequired("owner")

	cmd.AddCommand(newMigrateStatusCmd(state))
	return cmd
}

func newMigrateStatusCmd(state *cli) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded migration status for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := bootstrapRuntime(cmd.Context(), state.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Shutdown(cmd.Context()) }()

			status, ok, err := stack.Migration.Status(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "no migration recorded for %s\n", owner)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner to inspect")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
