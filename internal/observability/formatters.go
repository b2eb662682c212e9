// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/study-resources/internal/extraction"
	"github.com/jonathan/study-resources/internal/pipeline"
	"github.com/jonathan/study-resources/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	p.printLine(title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		p.printLine(truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// printLine pads by rune count so accented text keeps the border aligned.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printLine(line string) {
	pad := boxWidth - 4 - utf8.RuneCountInString(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.out, "│ %s%s │\n", line, strings.Repeat(" ", pad))
}

// PrintAggregate outputs a summary of one stored generation.
func (p *Printer) PrintAggregate(agg *types.Aggregate) {
	if agg == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Input:    %s (%s)\n", agg.InputID, agg.Kind))
	sb.WriteString(fmt.Sprintf("Subject:  %s, %s\n", agg.Subject, agg.Grade))
	sb.WriteString(fmt.Sprintf("Model:    %s\n", agg.Model))
	sb.WriteString(fmt.Sprintf("Strategy: %s", agg.Strategy))
	if agg.NeedsReview {
		sb.WriteString("  ⚠ needs review")
	}
	sb.WriteString("\n\n")

	sb.WriteString(truncate(agg.Content.Text, 2*(boxWidth-4)) + "\n\n")

	if len(agg.Content.OptionExplanations) > 0 {
		sb.WriteString("Options:\n")
		for _, oe := range agg.Content.OptionExplanations {
			sb.WriteString(fmt.Sprintf("  %s) %s\n", oe.ID, truncate(oe.Explanation, 45)))
		}
		sb.WriteString("\n")
	}

	exercises, videos, links := agg.Counts()
	sb.WriteString(fmt.Sprintf("Resources: %d exercises, %d videos, %d links\n", exercises, videos, links))
	count := min(len(agg.Resources), maxItemsToShow)
	for i := 0; i < count; i++ {
		tr := agg.Resources[i]
		sb.WriteString(fmt.Sprintf("  • %s: %dE %dV %dL\n", tr.Topic, len(tr.Exercises), len(tr.Videos), len(tr.Links)))
	}
	if len(agg.Resources) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more topics\n", len(agg.Resources)-maxItemsToShow))
	}

	if agg.Digest != "" {
		sb.WriteString(fmt.Sprintf("\nDigest: %s", agg.Digest[:min(len(agg.Digest), 16)]))
	}

	p.printBox("GENERATION "+agg.ID, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatchReport outputs the totals of a batch run and its failures.
func (p *Printer) PrintBatchReport(report *pipeline.BatchReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total:     %d\n", report.Total))
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", report.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", report.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", report.Skipped))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", report.Duration.Round(time.Millisecond)))

	if len(report.Failures) > 0 {
		sb.WriteString("\n")
		count := min(len(report.Failures), maxItemsToShow)
		for i := 0; i < count; i++ {
			f := report.Failures[i]
			retry := ""
			if f.Retryable {
				retry = ", retryable"
			}
			sb.WriteString(fmt.Sprintf("⚠ %s [%s%s]\n", f.InputID, f.Category, retry))
			sb.WriteString(fmt.Sprintf("  %s\n", f.Error))
		}
		if len(report.Failures) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more failures\n", len(report.Failures)-maxItemsToShow))
		}
	}

	title := "✅ BATCH COMPLETE"
	if !report.OK() {
		title = "BATCH FINISHED WITH FAILURES"
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResources outputs the cached resources of one partition.
func (p *Printer) PrintResources(key types.ResourceKey, kind types.ResourceKind, resources []types.CachedResource) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d %s resources\n", len(resources), kind))
	if len(resources) > 0 {
		sb.WriteString("\n")
	}

	count := min(len(resources), maxItemsToShow)
	for i := 0; i < count; i++ {
		r := resources[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", r.Slot, r.Title))
		if r.URL != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", r.URL))
		}
	}
	if len(resources) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more", len(resources)-maxItemsToShow))
	}

	p.printBox(strings.ToUpper(key.String()), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutcome outputs the result of an extraction.
func (p *Printer) PrintOutcome(outcome extraction.Outcome) {
	var sb strings.Builder
	if !outcome.OK() && outcome.Err != nil {
		sb.WriteString(fmt.Sprintf("Failure: %s\n", outcome.Err.Kind))
		if outcome.Err.Excerpt != "" {
			sb.WriteString(fmt.Sprintf("Excerpt: %s", outcome.Err.Excerpt))
		}
		p.printBox("EXTRACTION FAILED", strings.TrimSuffix(sb.String(), "\n"))
		return
	}

	sb.WriteString(fmt.Sprintf("Strategy:    %s\n", outcome.Strategy))
	sb.WriteString(fmt.Sprintf("Synthesized: %t\n", outcome.Synthesized))
	sb.WriteString(fmt.Sprintf("Trusted:     %t\n", outcome.Trusted()))
	sb.WriteString(fmt.Sprintf("Size:        %d bytes", len(outcome.Document)))
	p.printBox("EXTRACTED DOCUMENT", sb.String())
}

// PrintLinkCheck outputs the verdict of the validation gate for one URL.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintLinkCheck(url string, err error) {
	if err == nil {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		p.printLine("✅ ACCEPTED")
		p.printLine(truncate(url, boxWidth-4))
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}
	p.printBox("REJECTED", url+"\n\n"+err.Error())
}
