// Package janitor implements background cleanup of expired links and orphan
// blobs, kept independent from the request path per the teacher's
// internal/janitor package (haukened-gone): ticker loop, in-memory
// Metrics/recordCycle shape, Start/Stop guarded with sync.Once.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cinderfile/cinder/internal/domain"
)

// CleanupService is the subset of orchestrator.Service the janitor drives.
type CleanupService interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Reconciler lists every blob path the secure-file repository still
// references, so the janitor can detect and remove orphans left by a crash
// between blob write and index commit, or between burn steps (spec.md §9
// supplemented feature).
type Reconciler interface {
	ListBlobPaths(ctx context.Context) ([]domain.PathReference, error)
}

// BlobLister lists every blob path actually present in a FileStorePort
// backend. Both blobstore/filesystem.Store and blobstore/s3.Store satisfy
// this alongside their FileStorePort methods.
type BlobLister interface {
	List(ctx context.Context) ([]domain.PathReference, error)
	Delete(ctx context.Context, ref domain.PathReference) error
}

// CycleObserver records a Prometheus-backed view of cycle duration
// alongside the Janitor's own in-memory Metrics. Implemented by
// metrics.Recorder; optional.
type CycleObserver interface {
	ObserveJanitorCycle(d time.Duration)
}

// Config holds tunables for the Janitor.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger  // optional; defaults to slog.Default()
	Observer CycleObserver // optional
}

// Metrics accumulates in-memory counters for operational insight.
type Metrics struct {
	mu                  sync.Mutex
	Cycles              uint64
	Expired             uint64
	OrphansRemoved      uint64
	CycleLastDurationMS int64
}

// MetricsView is a read-only snapshot safe to copy.
type MetricsView struct {
	Cycles              uint64
	Expired             uint64
	OrphansRemoved      uint64
	CycleLastDurationMS int64
}

func (m *Metrics) addExpired(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.Expired += uint64(n)
	m.mu.Unlock()
}

func (m *Metrics) addOrphans(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.OrphansRemoved += uint64(n)
	m.mu.Unlock()
}

func (m *Metrics) recordCycle(d time.Duration) {
	m.mu.Lock()
	m.Cycles++
	m.CycleLastDurationMS = d.Milliseconds()
	m.mu.Unlock()
}

// Janitor encapsulates the periodic cleanup-and-reconcile loop.
type Janitor struct {
	service    CleanupService
	repo       Reconciler
	blobs      BlobLister
	cfg        Config
	metrics    *Metrics

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Janitor. blobs may be nil to disable
// the orphan-reconciliation pass (e.g. during tests against an in-memory
// FileStorePort double).
func New(service CleanupService, repo Reconciler, blobs BlobLister, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Janitor{
		service: service,
		repo:    repo,
		blobs:   blobs,
		cfg:     cfg,
		metrics: &Metrics{},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the janitor loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	}
	j.ticker = time.NewTicker(j.cfg.Interval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	<-j.doneCh
}

// MetricsSnapshot returns a copy of the current counters.
func (j *Janitor) MetricsSnapshot() MetricsView {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	return MetricsView{
		Cycles:              j.metrics.Cycles,
		Expired:             j.metrics.Expired,
		OrphansRemoved:      j.metrics.OrphansRemoved,
		CycleLastDurationMS: j.metrics.CycleLastDurationMS,
	}
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one expiry-sweep-plus-reconcile cycle. Exported so it
// can also be driven by an event trigger (see NATSTrigger) or by tests.
func (j *Janitor) RunCycle(ctx context.Context) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")

	count, err := j.service.CleanupExpired(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("cleanup_expired", "error", err)
	}
	j.metrics.addExpired(count)

	if j.repo != nil && j.blobs != nil {
		orphans, rerr := j.reconcile(ctx)
		if rerr != nil && !errors.Is(rerr, context.Canceled) {
			log.Error("reconcile", "error", rerr)
		}
		j.metrics.addOrphans(orphans)
	}

	elapsed := time.Since(start)
	j.metrics.recordCycle(elapsed)
	if j.cfg.Observer != nil {
		j.cfg.Observer.ObserveJanitorCycle(elapsed)
	}
	log.Info("cycle complete", "expired", count, "ms", elapsed.Milliseconds())
}

// reconcile diffs the set of blob paths the repository still references
// against what the blob store actually holds, deleting orphans (blobs with
// no referencing row — left behind by a crash between write and commit, or
// between burn's file-record delete and blob delete).
func (j *Janitor) reconcile(ctx context.Context) (int, error) {
	referenced, err := j.repo.ListBlobPaths(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[domain.PathReference]struct{}, len(referenced))
	for _, p := range referenced {
		live[p] = struct{}{}
	}
	present, err := j.blobs.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range present {
		if _, ok := live[p]; ok {
			continue
		}
		if err := j.blobs.Delete(ctx, p); err == nil {
			removed++
		}
	}
	return removed, nil
}
