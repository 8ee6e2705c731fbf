// Package remote keeps local printer records and the remote record store
// converged: a background worker pushes pending changes and deletions out,
// and a change feed applies remote-side updates back. Both talk to the
// record manager through narrow interfaces and treat the remote wire format
// as opaque beyond the (remoteID, payload) pair.
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"printdock/storage"
)

// Logger interface for remote sync operations
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Store is the remote record store. Implementations own the wire protocol;
// the sync layer only handles the opaque identity/payload pair it hands back.
type Store interface {
	// Save uploads a record and returns the remote identity assigned to it
	// together with the serialized remote representation to cache locally.
	Save(ctx context.Context, printer *storage.Printer) (remoteID string, payload []byte, err error)
	// Delete removes the remote counterpart of a locally deleted record
	Delete(ctx context.Context, remoteID string) error
}

// Records is the slice of the printer manager the sync layer drives. The
// write-back methods are sync bookkeeping: they update remote identity and
// payload without flagging records for another upload.
type Records interface {
	PrintersNeedingSync() []*storage.Printer
	ApplyRemoteIdentity(ctx context.Context, localID, remoteID string, payload []byte) error
	ApplyRemotePayload(ctx context.Context, remoteID string, payload []byte) error
	DeleteByRemoteID(ctx context.Context, remoteID string) error
	ListTombstones(ctx context.Context) ([]*storage.Tombstone, error)
	DeleteTombstone(ctx context.Context, remoteID string) error
}

// WorkerConfig contains configuration for the sync worker
type WorkerConfig struct {
	SyncInterval  time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Worker periodically pushes records flagged for upload through the remote
// store and replays pending deletion tombstones. A record that fails to push
// keeps its flag, so the next cycle picks it up again.
type Worker struct {
	store   Store
	records Records
	logger  Logger

	syncInterval  time.Duration
	retryAttempts int
	retryBackoff  time.Duration

	mu        sync.RWMutex
	running   bool
	lastSync  time.Time
	lastError string

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// WorkerStatus surfaces worker timings and backlog for diagnostics.
type WorkerStatus struct {
	Running        bool      `json:"running"`
	LastSync       time.Time `json:"last_sync"`
	LastError      string    `json:"last_error,omitempty"`
	PendingRecords int       `json:"pending_records"`
}

// NewWorker creates a sync worker. logger may be nil.
func NewWorker(store Store, records Records, logger Logger, config WorkerConfig) *Worker {
	if config.SyncInterval == 0 {
		config.SyncInterval = 300 * time.Second
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 2 * time.Second
	}

	return &Worker{
		store:         store,
		records:       records,
		logger:        logger,
		syncInterval:  config.SyncInterval,
		retryAttempts: config.RetryAttempts,
		retryBackoff:  config.RetryBackoff,
		triggerCh:     make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background sync loop. The first cycle runs immediately.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.syncLoop()

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Info("Sync worker started", "sync_interval", w.syncInterval)
	}
}

// Stop gracefully shuts down the worker, waiting for an in-flight cycle
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Info("Sync worker stopped")
	}
}

// TriggerSync nudges the worker to run a cycle now instead of waiting for
// the next tick. Safe to call from any goroutine; extra nudges during a
// running cycle collapse into one.
func (w *Worker) TriggerSync() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the worker lifecycle and backlog.
func (w *Worker) Status() WorkerStatus {
	if w == nil {
		return WorkerStatus{}
	}
	w.mu.RLock()
	status := WorkerStatus{
		Running:   w.running,
		LastSync:  w.lastSync,
		LastError: w.lastError,
	}
	w.mu.RUnlock()
	status.PendingRecords = len(w.records.PrintersNeedingSync())
	return status
}

func (w *Worker) syncLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.syncInterval)
	defer ticker.Stop()

	// First cycle runs immediately, not after the first interval
	w.syncOnce()

	for {
		select {
		case <-ticker.C:
			w.syncOnce()
		case <-w.triggerCh:
			w.syncOnce()
		case <-w.stopCh:
			return
		}
	}
}

// syncOnce performs a complete sync cycle: records first, then tombstones.
// A failed push does not block tombstone replay; both failures are reported
// through Status and retried next cycle.
func (w *Worker) syncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pushErr := w.pushRecords(ctx)
	if pushErr != nil && w.logger != nil {
		w.logger.WarnRateLimited("sync_push", 10*time.Minute,
			"Record push failed", "error", pushErr)
	}

	stoneErr := w.replayTombstones(ctx)
	if stoneErr != nil && w.logger != nil {
		w.logger.WarnRateLimited("sync_tombstones", 10*time.Minute,
			"Tombstone replay failed", "error", stoneErr)
	}

	w.mu.Lock()
	switch {
	case pushErr != nil:
		w.lastError = pushErr.Error()
	case stoneErr != nil:
		w.lastError = stoneErr.Error()
	default:
		w.lastSync = time.Now()
		w.lastError = ""
	}
	w.mu.Unlock()
}

// pushRecords uploads every record flagged for sync and writes the assigned
// remote identity back. The first record that exhausts its retries aborts
// the pass; it and the rest stay flagged for the next cycle.
func (w *Worker) pushRecords(ctx context.Context) error {
	dirty := w.records.PrintersNeedingSync()
	if len(dirty) == 0 {
		return nil
	}

	pushed := 0
	for _, printer := range dirty {
		var remoteID string
		var payload []byte

		err := w.retryWithBackoff(func() error {
			var saveErr error
			remoteID, payload, saveErr = w.store.Save(ctx, printer)
			return saveErr
		})
		if err != nil {
			return fmt.Errorf("failed to push printer %s: %w", printer.LocalID, err)
		}

		err = w.records.ApplyRemoteIdentity(ctx, printer.LocalID, remoteID, payload)
		if err == storage.ErrNotFound {
			// Deleted while we were uploading. Drop the remote copy we just
			// created, or it lingers with no local counterpart.
			if w.logger != nil {
				w.logger.Debug("Printer deleted during push", "localId", printer.LocalID)
			}
			if delErr := w.store.Delete(ctx, remoteID); delErr != nil && w.logger != nil {
				w.logger.Warn("Failed to remove orphaned remote record",
					"remoteId", remoteID, "error", delErr)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to record remote identity for %s: %w", printer.LocalID, err)
		}
		pushed++
	}

	if w.logger != nil {
		w.logger.Info("Records pushed", "count", pushed)
	}
	return nil
}

// replayTombstones deletes the remote counterparts of locally removed
// records, dropping each tombstone only after the remote delete went through.
func (w *Worker) replayTombstones(ctx context.Context) error {
	stones, err := w.records.ListTombstones(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tombstones: %w", err)
	}
	if len(stones) == 0 {
		return nil
	}

	for _, stone := range stones {
		err := w.retryWithBackoff(func() error {
			return w.store.Delete(ctx, stone.RemoteID)
		})
		if err != nil {
			return fmt.Errorf("failed to delete remote record %s: %w", stone.RemoteID, err)
		}
		if err := w.records.DeleteTombstone(ctx, stone.RemoteID); err != nil {
			return fmt.Errorf("failed to drop tombstone %s: %w", stone.RemoteID, err)
		}
	}

	if w.logger != nil {
		w.logger.Info("Tombstones replayed", "count", len(stones))
	}
	return nil
}

// retryWithBackoff retries a function with exponential backoff
func (w *Worker) retryWithBackoff(fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < w.retryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == w.retryAttempts-1 {
			break
		}

		// 2s, 4s, 8s, ...
		backoff := w.retryBackoff * time.Duration(1<<attempt)
		if w.logger != nil {
			w.logger.Debug("Retry after backoff",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)
		}

		select {
		case <-time.After(backoff):
		case <-w.stopCh:
			return fmt.Errorf("stopped during retry")
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", w.retryAttempts, lastErr)
}
