// Package eventlog is the append-only record of what a capgate run did. It
// backs three consumers: the admin websocket feed (tailing Since), a
// workflow waiting on a specific event kind (Wait — this is how the evil
// twin workflow's S4 phase learns a credential was captured), and the PDF
// reporter (a full read at the end of a run).
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
)

// Log is an in-memory, JSONL-backed append-only event log for one run.
type Log struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []domain.Event
	file    *os.File
}

// New returns a Log that also appends every event to path as JSON Lines,
// if path is non-empty.
func New(path string) (*Log, error) {
	l := &Log{}
	l.cond = sync.NewCond(&l.mu)
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open event log file %s: %w", path, err)
		}
		l.file = f
	}
	return l, nil
}

var _ ports.EventLog = (*Log)(nil)

// Append records ev, assigning it an ID and timestamp if they're unset.
func (l *Log) Append(ctx context.Context, ev domain.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	l.mu.Lock()
	l.entries = append(l.entries, ev)
	if l.file != nil {
		line, err := json.Marshal(ev)
		if err == nil {
			_, _ = l.file.Write(append(line, '\n'))
		}
	}
	l.cond.Broadcast()
	l.mu.Unlock()
	return nil
}

// Since returns every event for runID recorded after afterID, in order.
// An empty afterID returns the full history for runID.
func (l *Log) Since(ctx context.Context, runID string, afterID string) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Event
	seen := afterID == ""
	for _, ev := range l.entries {
		if ev.RunID != runID {
			continue
		}
		if seen {
			out = append(out, ev)
			continue
		}
		if ev.ID == afterID {
			seen = true
		}
	}
	return out, nil
}

// Wait blocks until an event of the given kind for runID is appended, or
// ctx is canceled. If such an event was already appended before Wait was
// called, it returns immediately with the first match.
func (l *Log) Wait(ctx context.Context, runID string, kind string) (domain.Event, error) {
	type result struct {
		ev  domain.Event
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		l.mu.Lock()
		for {
			for _, ev := range l.entries {
				if ev.RunID == runID && ev.Kind == kind {
					l.mu.Unlock()
					resultCh <- result{ev: ev}
					return
				}
			}
			if ctx.Err() != nil {
				l.mu.Unlock()
				resultCh <- result{err: ctx.Err()}
				return
			}
			l.cond.Wait()
		}
	}()

	// Broadcast periodically isn't needed: Append already broadcasts on
	// every new event, and ctx cancellation is checked each time this
	// goroutine wakes. When ctx is done first, the select below returns
	// ctx.Err() at once and broadcasts so the goroutine wakes, sees the
	// canceled ctx, and exits.
	select {
	case r := <-resultCh:
		return r.ev, r.err
	case <-ctx.Done():
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
		return domain.Event{}, ctx.Err()
	}
}

// Close releases the underlying log file, if one was opened.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
