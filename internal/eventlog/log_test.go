package eventlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIDAndSinceFilters(t *testing.T) {
	l, err := New("")
	require.NoError(t, err)

	require.NoError(t, l.Append(context.Background(), domain.Event{RunID: "r1", Kind: "a"}))
	require.NoError(t, l.Append(context.Background(), domain.Event{RunID: "r2", Kind: "b"}))
	require.NoError(t, l.Append(context.Background(), domain.Event{RunID: "r1", Kind: "c"}))

	events, err := l.Since(context.Background(), "r1", "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Kind)
	assert.Equal(t, "c", events[1].Kind)

	more, err := l.Since(context.Background(), "r1", events[0].ID)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "c", more[0].Kind)
}

func TestWaitReturnsImmediatelyIfAlreadyAppended(t *testing.T) {
	l, err := New("")
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), domain.Event{RunID: "r1", Kind: domain.EventKindCredentialCaptured}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := l.Wait(ctx, "r1", domain.EventKindCredentialCaptured)
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindCredentialCaptured, ev.Kind)
}

func TestWaitBlocksUntilAppended(t *testing.T) {
	l, err := New("")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = l.Append(context.Background(), domain.Event{RunID: "r1", Kind: domain.EventKindCredentialCaptured})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := l.Wait(ctx, "r1", domain.EventKindCredentialCaptured)
	require.NoError(t, err)
	assert.Equal(t, domain.EventKindCredentialCaptured, ev.Kind)
}

func TestWaitTimesOut(t *testing.T) {
	l, err := New("")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Wait(ctx, "r1", domain.EventKindCredentialCaptured)
	require.Error(t, err)
}

func TestAppendWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	l, err := New(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), domain.Event{RunID: "r1", Kind: "a"}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &ev))
	assert.Equal(t, "r1", ev.RunID)
}
