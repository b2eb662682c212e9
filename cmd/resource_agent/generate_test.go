package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/study-resources/internal/cache"
	"github.com/jonathan/study-resources/internal/config"
	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/llm"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/pipeline"
	"github.com/jonathan/study-resources/internal/ratelimit"
	"github.com/jonathan/study-resources/internal/search"
	"github.com/jonathan/study-resources/internal/types"
)

// clearServiceEnv keeps .env values from reaching the commands under test.
// Empty variables are ignored by the config loader.
func clearServiceEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LLM_PROVIDER", "LLM_MODE", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_APPLICATION_CREDENTIALS",
		"DATABASE_URL", "SQLITE_PATH", "REDIS_ADDR",
		"YOUTUBE_API_KEY", "SEARCH_API_KEY", "SEARCH_ENGINE_ID",
	} {
		t.Setenv(name, "")
	}
}

// runGenerate executes the generate command with fresh flag state.
func runGenerate(t *testing.T, args ...string) (string, error) {
	t.Helper()
	clearServiceEnv(t)
	genInput, genBatchSize, genSubject, genGrade, genKind = "", 0, "", "", ""
	genDryRun, genDBURL, genSQLite = false, "", ""
	configPath, verbose = "", false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"generate"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), err
}

func writeInputs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inputs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const summaryInputs = `[
  {"id": "sum-1", "kind": "summary", "subject": "matemática", "grade": "6º ano", "topics": ["frações"]},
  {"id": "sum-2", "kind": "summary", "subject": "história", "grade": "6º ano", "topics": ["Egito antigo"]}
]`

func TestGenerateCommand_RejectsBadArguments(t *testing.T) {
	inputs := writeInputs(t, summaryInputs)

	tests := []struct {
		name      string
		args      []string
		wantError string
	}{
		{name: "missing input flag", args: nil, wantError: `required flag(s) "input"`},
		{name: "unknown kind", args: []string{"--input", inputs, "--kind", "essay"}, wantError: "unknown generation kind"},
		{name: "negative batch size", args: []string{"--input", inputs, "--batch-size", "-1"}, wantError: "--batch-size must be non-negative"},
		{name: "input file not found", args: []string{"--input", filepath.Join(t.TempDir(), "absent.json")}, wantError: "failed to read inputs"},
		{name: "no API key", args: []string{"--input", inputs}, wantError: "API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runGenerate(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

// scriptedClient answers every prompt with the text returned by respond.
type scriptedClient struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) string
}

func (c *scriptedClient) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, req.Prompt())
	c.mu.Unlock()
	return &llm.Response{Text: c.respond(req.Prompt()), Model: "scripted", FinishReason: "STOP"}, nil
}

func (c *scriptedClient) GetModel(llm.ModelTier) string { return "scripted" }
func (c *scriptedClient) Close() error                  { return nil }

// videoProvider returns n distinct videos per search.
type videoProvider struct {
	mu    sync.Mutex
	calls int
	n     int
}

func (p *videoProvider) Kind() types.ResourceKind { return types.KindVideo }

func (p *videoProvider) Search(_ context.Context, q search.Query, max int) ([]types.Candidate, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	n := p.n
	if n > max {
		n = max
	}
	out := make([]types.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, types.Candidate{
			ExternalID: fmt.Sprintf("%s-%d", q.Key.Topic, i),
			Title:      fmt.Sprintf("Aula %d: %s", i, q.Key.Topic),
			Provider:   "youtube",
		})
	}
	return out, nil
}

type acceptAll struct{}

func (acceptAll) Check(context.Context, types.ResourceKind, types.Candidate, []string) error {
	return nil
}

func (acceptAll) RankByRelevance(candidates []types.Candidate, _, _ []string) []types.Candidate {
	return candidates
}

// newTestApp wires the collaborators of a command around in-memory fakes.
func newTestApp(client llm.Client, providers ...cache.Provider) *app {
	cfg := config.DefaultConfig()
	store := db.NewMemoryStore()
	window := ratelimit.NewWindow(&ratelimit.Config{}, ratelimit.SystemClock{})
	a := &app{cfg: &cfg, log: logger.Nop(), store: store}
	if client != nil {
		a.scheduler = llm.NewScheduler(client, window, llm.SchedulerOptions{Logger: a.log})
	}
	a.cache = cache.New(store, acceptAll{}, nil, cfg.Cache(), a.log, providers...)
	return a
}

const summaryResponse = "```json\n" + `{
  "text": "Resumo sobre o tema.",
  "topics": ["frações"],
  "exercises": [{"statement": "Simplifique 2/4", "answer": "1/2"}]
}` + "\n```"

func TestRunBatch_ReportsEachInput(t *testing.T) {
	items, err := pipeline.LoadInputs(writeInputs(t, summaryInputs))
	require.NoError(t, err)

	tests := []struct {
		name      string
		respond   func(prompt string) string
		opts      pipeline.BatchOptions
		wantOut   []string
		wantError string
	}{
		{
			name:    "all succeed",
			respond: func(string) string { return summaryResponse },
			wantOut: []string{"2 succeeded, 0 failed, 0 skipped of 2 inputs"},
		},
		{
			name: "one input without JSON",
			respond: func(prompt string) string {
				if strings.Contains(prompt, "história") {
					return "Desculpe, não posso ajudar."
				}
				return summaryResponse
			},
			wantOut:   []string{"1 succeeded, 1 failed, 0 skipped of 2 inputs", "sum-2 ["},
			wantError: "1 of 2 attempted inputs failed",
		},
		{
			name:    "subject filter skips",
			respond: func(string) string { return summaryResponse },
			opts:    pipeline.BatchOptions{Subject: "Matematica"},
			wantOut: []string{"1 succeeded, 0 failed, 1 skipped of 2 inputs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{respond: tt.respond}
			a := newTestApp(client, &videoProvider{n: 4})
			var out bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&out)

			err := runBatch(context.Background(), cmd, a, items, tt.opts, false)

			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestRunBatch_InterruptedBeforeStart(t *testing.T) {
	items, err := pipeline.LoadInputs(writeInputs(t, summaryInputs))
	require.NoError(t, err)
	client := &scriptedClient{respond: func(string) string { return summaryResponse }}
	a := newTestApp(client, &videoProvider{n: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	err = runBatch(ctx, cmd, a, items, pipeline.BatchOptions{}, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted: 2 inputs skipped")
	assert.Empty(t, client.prompts)
}
