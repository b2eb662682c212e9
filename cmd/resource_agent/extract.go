package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/study-resources/internal/extraction"
	"github.com/jonathan/study-resources/internal/observability"
	"github.com/jonathan/study-resources/internal/pipeline"
	"github.com/jonathan/study-resources/internal/schemas"
	"github.com/jonathan/study-resources/internal/types"
)

var extractCommand = &cobra.Command{
	Use:   "extract [file]",
	Short: "Recover the structured document from a saved model response",
	Long: `Runs the extraction cascade over a raw model response and prints the recovered
JSON document. The document is checked against the output schema of the given
generation kind and, with --schema-file, against an external JSON Schema.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtractCmd,
}

var (
	extractInput      string
	extractKind       string
	extractOptions    string
	extractSchemaFile string
	extractSchemaOut  string
	extractOut        string
)

func init() {
	extractCommand.Flags().StringVarP(&extractInput, "input", "i", "", "Path to the raw response (or pass it as the argument)")
	extractCommand.Flags().StringVar(&extractKind, "kind", string(types.GenerationSummary), "Generation kind whose schema applies (justification, study_plan, summary)")
	extractCommand.Flags().StringVar(&extractOptions, "options", "", "Comma-separated option ids expected in a justification (e.g. A,B,C,D)")
	extractCommand.Flags().StringVar(&extractSchemaFile, "schema-file", "", "Additional JSON Schema file the document must satisfy")
	extractCommand.Flags().StringVar(&extractSchemaOut, "schema-out", "", "Write the kind's JSON Schema to this path")
	extractCommand.Flags().StringVarP(&extractOut, "out", "o", "", "Write the document to this path instead of stdout")

	rootCmd.AddCommand(extractCommand)
}

func runExtractCmd(cmd *cobra.Command, args []string) error {
	path := extractInput
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("an input file is required (--input or argument)")
	}

	kind, err := types.ParseGenerationKind(extractKind)
	if err != nil {
		return err
	}
	in := &types.GenerationInput{Kind: kind}
	for _, id := range strings.Split(extractOptions, ",") {
		if id = strings.TrimSpace(id); id != "" {
			in.Options = append(in.Options, types.Option{ID: id})
		}
	}
	schema := pipeline.OutputSchema(in)

	if extractSchemaOut != "" {
		if err := schemas.WriteSchema(extractSchemaOut, schema.JSONSchema()); err != nil {
			return err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	outcome := extraction.Extract(string(raw), schema)
	if verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintOutcome(outcome)
	}
	if err := outcome.Error(); err != nil {
		return err
	}

	if err := schemas.ValidateDocument(schema.JSONSchema(), outcome.Document); err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, outcome.Document, "", "  "); err != nil {
		return fmt.Errorf("failed to format document: %w", err)
	}
	pretty.WriteByte('\n')

	if extractOut != "" {
		if err := os.WriteFile(extractOut, pretty.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
	} else if _, err := cmd.OutOrStdout().Write(pretty.Bytes()); err != nil {
		return err
	}

	if extractSchemaFile != "" {
		var err error
		if extractOut != "" {
			err = schemas.ValidateJSON(extractSchemaFile, extractOut)
		} else {
			err = schemas.ValidateFile(extractSchemaFile, outcome.Document)
		}
		var validationErr *schemas.ValidationError
		switch {
		case errors.As(err, &validationErr):
			return fmt.Errorf("document does not validate against %s: %w", extractSchemaFile, err)
		case err != nil:
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not validate against %s: %v\n", extractSchemaFile, err)
		}
	}

	if !outcome.Trusted() {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: recovered by the %s strategy (synthesized=%t); review before use\n",
			outcome.Strategy, outcome.Synthesized)
	}
	return nil
}
