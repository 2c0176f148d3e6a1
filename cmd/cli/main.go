// Command cli runs sync jobs and inspects sync history from the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"tms-sync/internal/app"
	"tms-sync/internal/config"
	"tms-sync/internal/db"
	"tms-sync/internal/domain"
)

func main() {
	root := &cobra.Command{
		Use:           "tms-sync",
		Short:         "Replicate TMS fact tables into the warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), historyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildApp loads config, opens both databases, and wires the application.
func buildApp() (*app.App, func(), error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	sourceDB, err := db.Open(cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("open source database: %w", err)
	}
	targetDB, err := db.Open(cfg.Target)
	if err != nil {
		_ = sourceDB.Close()
		return nil, nil, fmt.Errorf("open target database: %w", err)
	}

	cleanup := func() {
		_ = sourceDB.Close()
		_ = targetDB.Close()
	}
	return app.New(app.Deps{Cfg: cfg, SourceDB: sourceDB, TargetDB: targetDB, Logger: logger}), cleanup, nil
}

func runCmd() *cobra.Command {
	var (
		syncType string
		dateFrom string
		dateTo   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sync synchronously and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			req := domain.SubmitRequest{SyncType: domain.SyncType(syncType)}
			if req.DateFrom, err = parseDateFlag(dateFrom, "--date-from"); err != nil {
				return err
			}
			if req.DateTo, err = parseDateFlag(dateTo, "--date-to"); err != nil {
				return err
			}

			job, err := a.Service.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("job %s: %s\n", job.JobID, job.Status)
			fmt.Printf("  total=%d success=%d failed=%d\n",
				job.Counts.Total, job.Counts.Success, job.Counts.Failed)
			if job.Error != "" {
				fmt.Printf("  error: %s\n", job.Error)
			}
			if job.Status != domain.SyncStatusSuccess {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&syncType, "type", "both", "sync type: fact_order, fact_delivery or both")
	cmd.Flags().StringVar(&dateFrom, "date-from", "", "inclusive lower date bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "date-to", "", "inclusive upper date bound (YYYY-MM-DD)")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		syncType string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs from the sync log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			filter := domain.HistoryFilter{Limit: limit}
			if syncType != "" {
				st, err := domain.ParseSyncType(syncType)
				if err != nil {
					return err
				}
				filter.SyncType = &st
			}

			entries, err := a.Service.History(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no sync runs recorded")
				return nil
			}

			for _, e := range entries {
				finished := "-"
				if e.FinishedAt != nil {
					finished = e.FinishedAt.Format(time.RFC3339)
				}
				fmt.Printf("%d\t%s\t%s\t%s\t%s\t%s\ttotal=%d success=%d failed=%d\n",
					e.ID, e.JobID, e.SyncType, e.Status,
					e.StartedAt.Format(time.RFC3339), finished,
					e.TotalRows, e.SuccessRows, e.FailedRows)
				if e.ErrorMessage != nil {
					fmt.Printf("\terror: %s\n", *e.ErrorMessage)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&syncType, "type", "", "filter by sync type")
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultHistoryLimit, "maximum entries to list")
	return cmd
}

func parseDateFlag(s, flag string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD, got %q", flag, s)
	}
	return &ts, nil
}
