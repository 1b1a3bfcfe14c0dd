package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSessionNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreAddRunCreatesSessionAndAppends(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	t1 := time.Unix(1000, 0)
	require.NoError(t, s.AddRun(ctx, "sess-1", RunRecord{RunID: "r1", Task: "a", Response: "a!", Timestamp: t1}))

	t2 := time.Unix(2000, 0)
	require.NoError(t, s.AddRun(ctx, "sess-1", RunRecord{RunID: "r2", Task: "b", Response: "b!", Timestamp: t2}))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got.Runs, 2)
	require.Equal(t, "r1", got.Runs[0].RunID)
	require.Equal(t, "r2", got.Runs[1].RunID)
	require.Equal(t, t2, got.LastActive)
}

func TestMemoryStoreAddRunIsAtomicUnderConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AddRun(ctx, "sess-1", RunRecord{RunID: "r", Timestamp: time.Unix(int64(i), 0)})
		}()
	}
	wg.Wait()

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got.Runs, n)
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AddRun(ctx, "old", RunRecord{Timestamp: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, s.AddRun(ctx, "fresh", RunRecord{Timestamp: time.Now()}))

	removed, err := s.CleanupExpired(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = s.GetSession(ctx, "old")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.GetSession(ctx, "fresh")
	require.NoError(t, err)
}

func TestHistoryMessagesFlattensLastNRunsToPairs(t *testing.T) {
	s := Session{Runs: []RunRecord{
		{Task: "one", Response: "r1"},
		{Task: "two", Response: "r2"},
		{Task: "three", Response: "r3"},
	}}

	msgs := HistoryMessages(s, 2)
	require.Len(t, msgs, 4)
	require.Equal(t, "two", msgs[0].Content)
	require.Equal(t, "r2", msgs[1].Content)
	require.Equal(t, "three", msgs[2].Content)
	require.Equal(t, "r3", msgs[3].Content)
}

func TestHistoryMessagesZeroReturnsNil(t *testing.T) {
	s := Session{Runs: []RunRecord{{Task: "one", Response: "r1"}}}
	require.Nil(t, HistoryMessages(s, 0))
}
