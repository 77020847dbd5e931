package ops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressUpdateAndGet(t *testing.T) {
	store := NewProgressStore()
	store.Create("op-1", KindIndex, "/docs")

	snap := store.Update("op-1", func(s *Snapshot) {
		s.Status = StatusProcessing
		s.TotalFiles = 4
		s.FilesProcessed = 1
	})
	assert.Equal(t, 25.0, snap.ProgressPercent)

	got, ok := store.Get("op-1")
	require.True(t, ok)
	assert.Equal(t, snap, got)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestProgressSubscribeSeesSameStateAsGet(t *testing.T) {
	store := NewProgressStore()
	store.Create("op-1", KindScan, "/docs")

	updates, cancel, ok := store.Subscribe("op-1")
	require.True(t, ok)
	defer cancel()

	// Initial snapshot is delivered on subscribe.
	initial := <-updates
	assert.Equal(t, StatusQueued, initial.Status)

	store.Update("op-1", func(s *Snapshot) {
		s.Status = StatusScanning
		s.TotalFiles = 2
		s.FilesProcessed = 2
	})

	select {
	case pushed := <-updates:
		polled, _ := store.Get("op-1")
		assert.Equal(t, polled, pushed)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestProgressSubscribeUnknown(t *testing.T) {
	store := NewProgressStore()
	_, _, ok := store.Subscribe("missing")
	assert.False(t, ok)
}

func TestProgressSlowSubscriberDropsUpdates(t *testing.T) {
	store := NewProgressStore()
	store.Create("op-1", KindIndex, "/docs")

	_, cancel, ok := store.Subscribe("op-1")
	require.True(t, ok)
	defer cancel()

	// Never read; updates beyond the buffer must not block the operation.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			store.Update("op-1", func(s *Snapshot) { s.FilesProcessed++ })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("updates blocked on a slow subscriber")
	}
}

func TestProgressSkipReasonsDoNotAliasLiveState(t *testing.T) {
	store := NewProgressStore()
	store.Create("op-1", KindIndex, "/docs")

	store.Update("op-1", func(s *Snapshot) {
		s.FilesSkipped++
		s.SkipReasons = map[string]int{"ignored": 1}
	})

	before, ok := store.Get("op-1")
	require.True(t, ok)

	store.Update("op-1", func(s *Snapshot) {
		s.FilesSkipped++
		s.SkipReasons["ignored"]++
	})

	// The earlier snapshot keeps the counts it was handed.
	assert.Equal(t, 1, before.SkipReasons["ignored"])

	after, ok := store.Get("op-1")
	require.True(t, ok)
	assert.Equal(t, 2, after.SkipReasons["ignored"])
}

func TestProgressCancel(t *testing.T) {
	store := NewProgressStore()
	store.Create("op-1", KindIndex, "/docs")

	assert.False(t, store.IsCancelled("op-1"))
	assert.True(t, store.Cancel("op-1"))
	assert.True(t, store.IsCancelled("op-1"))

	assert.False(t, store.Cancel("missing"))

	store.Create("op-2", KindScan, "/docs")
	store.Update("op-2", func(s *Snapshot) { s.Status = StatusCompleted })
	assert.False(t, store.Cancel("op-2"))
}

func TestProgressTerminalPercent(t *testing.T) {
	store := NewProgressStore()
	store.Create("op-1", KindIndex, "/empty")

	snap := store.Update("op-1", func(s *Snapshot) { s.Status = StatusCompleted })
	assert.Equal(t, 100.0, snap.ProgressPercent)
}
