// Package audit keeps an asynchronous provenance trail of placement decisions.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/tier-router/models"
	"github.com/upb/tier-router/repositories"
	"github.com/upb/tier-router/services"
)

// ErrBufferFull is returned by Record when the queue cannot take another record.
var ErrBufferFull = services.NewDomainError(services.ErrorTypeUnavailable, "decision recorder buffer full", nil)

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // queued records before Record starts dropping
	WorkerCount int
	// WriteTimeout bounds a single repository insert.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes decision records to a repository from a pool of background workers.
type Recorder struct {
	repo    repositories.DecisionRepository
	logger  *zap.Logger
	queue   chan *models.DecisionRecord
	cfg     Config
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool

	written uint64
	failed  uint64
	dropped uint64
	counts  sync.Mutex
}

// NewRecorder creates a recorder. Call Start before Record.
func NewRecorder(repo repositories.DecisionRepository, logger *zap.Logger, cfg Config) *Recorder {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *models.DecisionRecord, cfg.BufferSize),
		cfg:    cfg,
	}
}

// Start launches the workers.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return services.ErrRecorderStopped
	}
	if r.started {
		return fmt.Errorf("decision recorder already started")
	}

	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started decision recorder",
		zap.Int("worker_count", r.cfg.WorkerCount),
		zap.Int("buffer_size", r.cfg.BufferSize))
	return nil
}

// Stop stops accepting records and waits up to timeout for the queue to drain.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("decision recorder not running")
	}
	r.stopped = true
	pending := len(r.queue)
	close(r.queue)
	r.mu.Unlock()

	r.logger.Info("stopping decision recorder", zap.Int("pending_records", pending))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("decision recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("decision recorder stop timeout after %v", timeout)
	}
}

// Record queues rec without blocking. A full queue drops the record.
func (r *Recorder) Record(rec *models.DecisionRecord) error {
	if rec == nil {
		return fmt.Errorf("nil decision record")
	}

	// The read lock is held across the send so Stop cannot close the queue under it.
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.started || r.stopped {
		return services.ErrRecorderStopped
	}

	select {
	case r.queue <- rec:
		return nil
	default:
		r.bump(&r.dropped)
		r.logger.Warn("decision queue full, dropping record",
			zap.String("decision_id", rec.ID.String()),
			zap.String("request_id", rec.RequestID))
		return ErrBufferFull
	}
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("decision worker started", zap.Int("worker_id", id))
	for rec := range r.queue {
		if err := r.write(rec); err != nil {
			r.bump(&r.failed)
			r.logger.Error("failed to record decision",
				zap.Int("worker_id", id),
				zap.String("decision_id", rec.ID.String()),
				zap.Error(err))
			continue
		}
		r.bump(&r.written)
	}
	r.logger.Debug("decision worker stopped", zap.Int("worker_id", id))
}

func (r *Recorder) write(rec *models.DecisionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

func (r *Recorder) bump(n *uint64) {
	r.counts.Lock()
	*n++
	r.counts.Unlock()
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize  int    `json:"bufferSize"`
	Pending     int    `json:"pending"`
	WorkerCount int    `json:"workerCount"`
	Running     bool   `json:"running"`
	Written     uint64 `json:"written"`
	Failed      uint64 `json:"failed"`
	Dropped     uint64 `json:"dropped"`
}

// Stats returns a snapshot of the recorder's counters.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	running := r.started && !r.stopped
	pending := len(r.queue)
	r.mu.RUnlock()

	r.counts.Lock()
	defer r.counts.Unlock()
	return Stats{
		BufferSize:  r.cfg.BufferSize,
		Pending:     pending,
		WorkerCount: r.cfg.WorkerCount,
		Running:     running,
		Written:     r.written,
		Failed:      r.failed,
		Dropped:     r.dropped,
	}
}
