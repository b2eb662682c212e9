package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/study-resources/internal/fetch"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/observability"
	"github.com/jonathan/study-resources/internal/types"
	"github.com/jonathan/study-resources/internal/validation"
)

var probeLinkCommand = &cobra.Command{
	Use:   "probe-link <url>",
	Short: "Run the link validation gate on a URL",
	Long: `Checks a URL the way the resource cache does before storing it: trusted
domain, relevance to the keywords, and liveness. The exit code is 1 when the
link is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbeLinkCmd,
}

var (
	probeTitle    string
	probeKeywords []string
	probeTimeout  time.Duration
)

func init() {
	probeLinkCommand.Flags().StringVar(&probeTitle, "title", "", "Title to check for relevance (default: the page title)")
	probeLinkCommand.Flags().StringSliceVar(&probeKeywords, "keywords", nil, "Keywords the link must be relevant to")
	probeLinkCommand.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "Overall timeout")

	rootCmd.AddCommand(probeLinkCommand)
}

func runProbeLinkCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	prober := fetch.NewProber(fetch.DefaultOptions())
	return probeLink(cmd, args[0], validation.NewGate(cfg.Gate(), prober, log), prober, log)
}

func probeLink(cmd *cobra.Command, rawURL string, gate *validation.Gate, prober *fetch.Prober, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cand := types.Candidate{URL: rawURL, Title: probeTitle}
	if cand.Title == "" {
		title, err := prober.Title(ctx, rawURL)
		if err != nil {
			log.Debug("could not read page title", "url", rawURL, "error", err)
		}
		cand.Title = title
	}

	keywords := probeKeywords
	if len(keywords) == 0 {
		// Without keywords the title is its own relevance target.
		keywords = strings.Fields(cand.Title)
	}

	checkErr := gate.CheckLink(ctx, cand, keywords)
	observability.NewPrinter(cmd.OutOrStdout()).PrintLinkCheck(rawURL, checkErr)
	return checkErr
}
