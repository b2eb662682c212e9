package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_HeadSuccess(t *testing.T) {
	var gets int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result, err := NewProber(nil).Probe(context.Background(), server.URL)

	require.NoError(t, err)
	assert.True(t, result.Alive)
	assert.Equal(t, http.MethodHead, result.Method)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Zero(t, atomic.LoadInt32(&gets))
}

func TestProbe_RedirectIsAliveAndNotFollowed(t *testing.T) {
	var followed int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/target" {
			atomic.AddInt32(&followed, 1)
		}
		http.Redirect(w, r, "/target", http.StatusMovedPermanently)
	}))
	defer server.Close()

	result, err := NewProber(nil).Probe(context.Background(), server.URL+"/start")

	require.NoError(t, err)
	assert.True(t, result.Alive)
	assert.Equal(t, http.StatusMovedPermanently, result.StatusCode)
	assert.Zero(t, atomic.LoadInt32(&followed))
}

func TestProbe_FallsBackToGetWhenHeadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>  Fractions:\n worked examples </title></head><body>ok</body></html>"))
	}))
	defer server.Close()

	result, err := NewProber(nil).Probe(context.Background(), server.URL)

	require.NoError(t, err)
	assert.True(t, result.Alive)
	assert.Equal(t, http.MethodGet, result.Method)
	assert.Equal(t, "Fractions: worked examples", result.Title)
}

func TestProbe_DeadResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := NewProber(nil).Probe(context.Background(), server.URL)

	require.NoError(t, err)
	assert.False(t, result.Alive)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, http.MethodGet, result.Method)
}

func TestProbe_SlowHostIsBounded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	prober := NewProber(&Options{ProbeTimeout: 50 * time.Millisecond, FetchTimeout: 50 * time.Millisecond})
	start := time.Now()
	result, err := prober.Probe(context.Background(), server.URL)

	require.NoError(t, err)
	assert.False(t, result.Alive)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestProbe_BodyIsCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 1024) + "<title>late</title>"))
	}))
	defer server.Close()

	result, err := NewProber(&Options{MaxBodyBytes: 512}).Probe(context.Background(), server.URL)

	require.NoError(t, err)
	assert.True(t, result.Alive)
	assert.Empty(t, result.Title)
}

func TestProbe_InvalidURL(t *testing.T) {
	for _, raw := range []string{"not-a-valid-url", "ftp://example.com/file", "https://"} {
		_, err := NewProber(nil).Probe(context.Background(), raw)
		require.Error(t, err, raw)

		var fetchErr *Error
		assert.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><head><title> Frações\n equivalentes </title></head></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	prober := NewProber(nil)

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "page answering HEAD still yields its title", url: server.URL + "/page", want: "Frações equivalentes"},
		{name: "missing page", url: server.URL + "/missing", wantErr: true},
		{name: "invalid URL", url: "ftp://example.org/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, err := prober.Title(context.Background(), tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, title)
		})
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"title element", "<html><head><title>Linear equations</title></head></html>", "Linear equations"},
		{"og title fallback", `<html><head><meta property="og:title" content="Open Graph title"></head></html>`, "Open Graph title"},
		{"none", "<html><body>no title</body></html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTitle(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
