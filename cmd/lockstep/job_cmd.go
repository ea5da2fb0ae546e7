package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lockstep/internal/batch"
	"github.com/mattjoyce/lockstep/internal/config"
	"github.com/mattjoyce/lockstep/internal/inspect"
	"github.com/mattjoyce/lockstep/internal/jobs"
	"github.com/mattjoyce/lockstep/internal/storage"
)

func newJobCmd(opts *rootOptions) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect jobs recorded in the shared execution store",
	}
	jobCmd.AddCommand(newJobListCmd(opts), newJobInspectCmd(opts))
	return jobCmd
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", cfg.State.Path, err)
	}
	return db, nil
}

func newJobListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured jobs with their latest execution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			return listJobs(cmd.Context(), cmd.OutOrStdout(), cfg.Jobs, batch.NewRepository(db), jobs.NewStore(db))
		},
	}
}

// listJobs prints one row per configured job, then any job found in the
// store that is no longer configured.
func listJobs(ctx context.Context, w io.Writer, configured []string, repo *batch.Repository, staging *jobs.Store) error {
	recorded, err := repo.JobNames(ctx)
	if err != nil {
		return err
	}
	names := slices.Clone(configured)
	for _, name := range recorded {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tCONFIGURED\tLAST\tSTATUS\tOWNER\tFENCE\tEND")
	for _, name := range names {
		last, err := repo.ListExecutions(ctx, name, 1)
		if err != nil {
			return err
		}
		isConfigured := "yes"
		if !slices.Contains(configured, name) {
			isConfigured = "no"
		}
		if len(last) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\n", name, isConfigured)
			continue
		}
		e := last[0]
		end := "-"
		if e.EndTime != nil {
			end = e.EndTime.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n", name, isConfigured, e.ID, e.Status, e.Owner, e.FencingToken, end)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	pending, err := staging.Pending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nstaged records awaiting publish: %d\n", pending)
	return nil
}

func newJobInspectCmd(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <job>",
		Short: "Show execution history for a job, flagging overlaps and fence regressions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := batch.NewRepository(db)
			var report string
			if jsonOut {
				report, err = inspect.BuildJSONReport(cmd.Context(), repo, args[0], limit)
			} else {
				report, err = inspect.BuildReport(cmd.Context(), repo, args[0], limit)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of most recent executions to include")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the report as JSON")
	return cmd
}
