package search

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/jonathan/study-resources/internal/types"
)

// webPageSize is the Custom Search API's maximum page size.
const webPageSize = 10

// DefaultWebMaxPages bounds how many pages one Search call may read.
const DefaultWebMaxPages = 3

// Web searches the web through the Custom Search JSON API.
type Web struct {
	svc      *customsearch.Service
	cx       string
	maxPages int
}

// NewWeb creates a Web provider.
func NewWeb(ctx context.Context, apiKey, cx string, maxPages int, opts ...option.ClientOption) (*Web, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("search API key and engine ID are required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	if maxPages <= 0 {
		maxPages = DefaultWebMaxPages
	}
	return &Web{svc: svc, cx: cx, maxPages: maxPages}, nil
}

// Kind implements cache.Provider.
func (w *Web) Kind() types.ResourceKind { return types.KindLink }

// SearchPage returns one page of results (0-based page index).
func (w *Web) SearchPage(ctx context.Context, query string, page, num int) ([]types.Candidate, error) {
	if num <= 0 || num > webPageSize {
		num = webPageSize
	}
	call := w.svc.Cse.List().Cx(w.cx).Q(query).Num(int64(num)).Start(int64(page*webPageSize + 1))
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]types.Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		out = append(out, types.Candidate{
			Title:       item.Title,
			URL:         item.Link,
			Description: item.Snippet,
			Provider:    "customsearch",
		})
	}
	return out, nil
}

// Search reads pages until max results are collected, a page comes back
// short, or the page bound is reached.
func (w *Web) Search(ctx context.Context, q Query, max int) ([]types.Candidate, error) {
	text := q.Text()
	if text == "" || max <= 0 {
		return nil, nil
	}

	var out []types.Candidate
	for page := 0; page < w.maxPages && len(out) < max; page++ {
		want := max - len(out)
		if want > webPageSize {
			want = webPageSize
		}
		items, err := w.SearchPage(ctx, text, page, want)
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		out = append(out, items...)
		if len(items) < want {
			break
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}
