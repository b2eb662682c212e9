package search

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jonathan/study-resources/internal/types"
)

// youtubeMaxResults is the API's per-call ceiling for search.list.
const youtubeMaxResults = 50

// YouTube searches videos through the YouTube Data API v3.
type YouTube struct {
	svc *youtube.Service
}

// NewYouTube creates a YouTube provider.
func NewYouTube(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTube, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &YouTube{svc: svc}, nil
}

// Kind implements cache.Provider.
func (y *YouTube) Kind() types.ResourceKind { return types.KindVideo }

// Search runs search.list for video ids and enriches them with duration and
// language from videos.list.
func (y *YouTube) Search(ctx context.Context, q Query, max int) ([]types.Candidate, error) {
	text := q.Text()
	if text == "" || max <= 0 {
		return nil, nil
	}
	if max > youtubeMaxResults {
		max = youtubeMaxResults
	}

	call := y.svc.Search.List([]string{"id", "snippet"}).
		Q(text).
		Type("video").
		SafeSearch("strict").
		MaxResults(int64(max))
	if q.Language != "" {
		call = call.RelevanceLanguage(q.Language)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("video search failed: %w", err)
	}

	var (
		out []types.Candidate
		ids []string
	)
	index := make(map[string]int)
	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		id := item.Id.VideoId
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = len(out)
		ids = append(ids, id)
		out = append(out, types.Candidate{
			ExternalID:  id,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			Channel:     item.Snippet.ChannelTitle,
			URL:         "https://www.youtube.com/watch?v=" + id,
			Provider:    "youtube",
		})
	}
	if len(ids) == 0 {
		return out, nil
	}

	details, err := y.svc.Videos.List([]string{"contentDetails", "snippet"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		// Details only refine validation; keep the bare results.
		return out, nil
	}
	for _, v := range details.Items {
		i, ok := index[v.Id]
		if !ok {
			continue
		}
		if v.ContentDetails != nil {
			if d, err := ParseISODuration(v.ContentDetails.Duration); err == nil {
				out[i].Duration = d
			}
		}
		if v.Snippet != nil {
			lang := v.Snippet.DefaultAudioLanguage
			if lang == "" {
				lang = v.Snippet.DefaultLanguage
			}
			out[i].Language = lang
		}
	}
	return out, nil
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses the ISO-8601 durations YouTube returns ("PT1H2M3S").
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}
