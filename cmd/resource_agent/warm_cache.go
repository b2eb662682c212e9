package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/study-resources/internal/observability"
	"github.com/jonathan/study-resources/internal/types"
)

var warmCacheCommand = &cobra.Command{
	Use:   "warm-cache",
	Short: "Fill the resource cache for one topic",
	Long: `Refills the cache partitions of one (subject, grade, topic) key so later
generations are served without searching. Exercises are only generated when a
generative provider is configured.`,
	RunE: runWarmCacheCmd,
}

var (
	warmSubject string
	warmGrade   string
	warmTopic   string
	warmKind    string
	warmCount   int
)

func init() {
	warmCacheCommand.Flags().StringVar(&warmSubject, "subject", "", "Subject of the partition")
	warmCacheCommand.Flags().StringVar(&warmGrade, "grade", "", "Grade of the partition")
	warmCacheCommand.Flags().StringVar(&warmTopic, "topic", "", "Topic of the partition")
	warmCacheCommand.Flags().StringVar(&warmKind, "kind", "", "Resource kind to warm (video, link, exercise; default all)")
	warmCacheCommand.Flags().IntVar(&warmCount, "count", 0, "Number of resources wanted per kind (default: cache capacity)")

	_ = warmCacheCommand.MarkFlagRequired("subject")
	_ = warmCacheCommand.MarkFlagRequired("grade")
	_ = warmCacheCommand.MarkFlagRequired("topic")

	rootCmd.AddCommand(warmCacheCommand)
}

func runWarmCacheCmd(cmd *cobra.Command, _ []string) error {
	kinds := types.AllKinds
	if warmKind != "" {
		kind, err := types.ParseResourceKind(warmKind)
		if err != nil {
			return err
		}
		kinds = []types.ResourceKind{kind}
	}
	if warmCount < 0 {
		return fmt.Errorf("--count must be non-negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Exercises need the generative client; other kinds do not.
	withGeneration := false
	for _, k := range kinds {
		if k == types.KindExercise && cfg.RequireGeneration() == nil {
			withGeneration = true
		}
	}

	a, err := newApp(ctx, cfg, withGeneration)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	key := types.ResourceKey{
		Subject: warmSubject,
		Grade:   warmGrade,
		Topic:   cfg.Canonicalizer().Canonicalize(warmSubject, warmTopic),
	}
	if err := key.Validate(); err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}

	return warmCache(ctx, cmd, a, key, kinds, warmCount)
}

// warmCache fills each kind's partition of key toward count resources, or
// toward the cache capacity when count is zero.
func warmCache(ctx context.Context, cmd *cobra.Command, a *app, key types.ResourceKey, kinds []types.ResourceKind, count int) error {
	if count == 0 {
		count = a.cache.Capacity()
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	for _, kind := range kinds {
		resources, err := a.cache.Get(ctx, key, kind, count)
		if err != nil {
			return fmt.Errorf("failed to warm %s/%s: %w", key, kind, err)
		}
		if a.cfg.Verbose {
			printer.PrintResources(key, kind, resources)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d resources\n", key, kind, len(resources))
		}
	}
	return nil
}
