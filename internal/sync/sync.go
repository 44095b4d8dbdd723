// Package sync backs up the named query registry to external destinations.
package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/docq/internal/store"
)

// Destination is a backup target (S3, git, ...).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write stores the JSONL payload, replacing the previous backup.
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the registry to its destinations on an interval.
// A destination is only written when the registry changed since its last
// successful write.
type Scheduler struct {
	source       store.Queries
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	written map[string][sha256.Size]byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from source to the given
// destinations every interval.
func NewScheduler(source store.Queries, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       source,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		written:      make(map[string][sha256.Size]byte),
	}
}

// Start runs an initial sync immediately, then one per tick, until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.SyncNow(ctx); err != nil {
		s.logger.Error("sync failed", "err", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncNow(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

// SyncNow exports once and writes to every destination whose last backup
// differs. Destination failures do not stop the others; all are returned.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	queries, err := s.source.ExportQueries(ctx)
	if err != nil {
		return fmt.Errorf("export queries: %w", err)
	}

	// The digest ignores the header timestamp so an unchanged registry is
	// recognised across runs.
	var body bytes.Buffer
	if err := writeJSONL(&body, queries, time.Time{}); err != nil {
		return err
	}
	digest := sha256.Sum256(body.Bytes())

	var data bytes.Buffer
	if err := writeJSONL(&data, queries, time.Now().UTC()); err != nil {
		return err
	}

	var errs []error
	written := 0
	for _, dest := range s.destinations {
		s.mu.Lock()
		prev, ok := s.written[dest.Name()]
		s.mu.Unlock()
		if ok && prev == digest {
			continue
		}
		if err := dest.Write(ctx, data.Bytes()); err != nil {
			s.logger.Error("sync destination write failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
		s.mu.Lock()
		s.written[dest.Name()] = digest
		s.mu.Unlock()
		written++
	}

	s.logger.Info("sync completed", "queries", len(queries), "written", written, "bytes", data.Len())
	return errors.Join(errs...)
}
