package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/study-resources/internal/observability"
	"github.com/jonathan/study-resources/internal/pipeline"
	"github.com/jonathan/study-resources/internal/types"
)

var generateCommand = &cobra.Command{
	Use:   "generate",
	Short: "Generate study content for a batch of inputs",
	Long: `Runs every matching input through prompt building, generation, extraction and
resource gathering, and stores complete results. A failed input is reported
and the batch moves on; the exit code is 1 when any input failed.

Inputs are read from a JSON array, a JSON Lines file (.jsonl) or a YAML list.`,
	RunE: runGenerateCmd,
}

var (
	genInput     string
	genBatchSize int
	genSubject   string
	genGrade     string
	genKind      string
	genDryRun    bool
	genDBURL     string
	genSQLite    string
)

func init() {
	generateCommand.Flags().StringVarP(&genInput, "input", "i", "", "Path to the batch input file")
	generateCommand.Flags().IntVar(&genBatchSize, "batch-size", 0, "Maximum number of inputs to attempt (0 = all)")
	generateCommand.Flags().StringVar(&genSubject, "subject", "", "Only process inputs of this subject")
	generateCommand.Flags().StringVar(&genGrade, "grade", "", "Only process inputs of this grade")
	generateCommand.Flags().StringVar(&genKind, "kind", "", "Only process inputs of this kind (justification, study_plan, summary)")
	generateCommand.Flags().BoolVar(&genDryRun, "dry-run", false, "Generate and validate without persisting")
	generateCommand.Flags().StringVar(&genDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	generateCommand.Flags().StringVar(&genSQLite, "sqlite", "", "SQLite database path (optional, defaults to SQLITE_PATH env var)")

	_ = generateCommand.MarkFlagRequired("input")

	rootCmd.AddCommand(generateCommand)
}

func runGenerateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = genDBURL
	}
	if cmd.Flags().Changed("sqlite") {
		cfg.SQLitePath = genSQLite
	}

	opts := pipeline.BatchOptions{Size: genBatchSize, Subject: genSubject, Grade: genGrade}
	if genKind != "" {
		kind, err := types.ParseGenerationKind(genKind)
		if err != nil {
			return err
		}
		opts.Kind = kind
	}
	if genBatchSize < 0 {
		return fmt.Errorf("--batch-size must be non-negative")
	}

	items, err := pipeline.LoadInputs(genInput)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return runBatch(ctx, cmd, a, items, opts, genDryRun)
}

// runBatch runs items through the orchestrator built on a and reports the
// outcome. It fails when any attempted input failed or the run was interrupted.
func runBatch(ctx context.Context, cmd *cobra.Command, a *app, items []types.GenerationInput, opts pipeline.BatchOptions, dryRun bool) error {
	cfg := a.cfg
	printer := observability.NewPrinter(cmd.OutOrStdout())
	orchOpts := cfg.Orchestrator()
	orchOpts.DryRun = dryRun
	if cfg.Verbose {
		orchOpts.OnProgress = func(e pipeline.ProgressEvent) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s: %s\n", e.InputID, e.Step, e.Message)
		}
	}
	orch := pipeline.NewOrchestrator(a.scheduler, a.cache, a.store, cfg.Canonicalizer(), orchOpts, a.log)

	report := orch.RunBatch(ctx, items, opts, func(agg *types.Aggregate) {
		if cfg.Verbose {
			printer.PrintAggregate(agg)
		}
	})

	if cfg.Verbose {
		printer.PrintBatchReport(report)
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed, %d skipped of %d inputs in %s\n",
			report.Succeeded, report.Failed, report.Skipped, report.Total, report.Duration.Round(time.Millisecond))
		for _, f := range report.Failures {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s [%s]: %s\n", f.InputID, f.Category, f.Error)
		}
	}

	if !report.OK() {
		return fmt.Errorf("%d of %d attempted inputs failed", report.Failed, report.Succeeded+report.Failed)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %d inputs skipped", report.Skipped)
	}
	return nil
}
