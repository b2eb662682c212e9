package cache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/study-resources/internal/types"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, l.held())
}

func TestLocalLocker_IndependentNames(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Equal(t, 0, l.held())
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := DialRedis(context.Background(), addr)
	require.NoError(t, err)
	defer rdb.Close()

	l := NewRedisLocker(rdb, 5*time.Second)
	unlock, err := l.Lock(context.Background(), "test-"+time.Now().Format(time.RFC3339Nano))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	name := "busy-" + time.Now().Format(time.RFC3339Nano)
	unlockBusy, err := l.Lock(context.Background(), name)
	require.NoError(t, err)
	_, err = l.Lock(ctx, name)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlockBusy()
	unlock()
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.Example.com/a/", "https://example.com/a"},
		{"http://example.com/a?utm_source=x&b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://example.com:443/a?fbclid=1", "https://example.com/a"},
		{"https://example.com", "https://example.com"},
		{"not a url", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input))
		})
	}
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "video:abc", DedupKey(types.KindVideo, types.Candidate{ExternalID: "abc", URL: "https://youtube.com/x"}))
	assert.Equal(t, "url:https://youtube.com/x", DedupKey(types.KindVideo, types.Candidate{URL: "https://youtube.com/x"}))
	assert.Equal(t, "url:https://example.com/a", DedupKey(types.KindLink, types.Candidate{URL: "https://www.example.com/a/"}))
	assert.Empty(t, DedupKey(types.KindLink, types.Candidate{Title: "no url"}))
	assert.Empty(t, DedupKey(types.KindExercise, types.Candidate{}))

	a := DedupKey(types.KindExercise, types.Candidate{Exercise: &types.Exercise{Statement: "Quanto é  2+2?"}})
	b := DedupKey(types.KindExercise, types.Candidate{Exercise: &types.Exercise{Statement: "quanto e 2+2?"}})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "exercise:")
}
