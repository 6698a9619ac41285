// Package service provides the core registry service that implements the
// dependencies required by the HTTP API.
//
// The service composes the append-only event log with the reputation and
// karma engines. Projections (CVM reputation, identity trust, the ranked
// leaderboard) are cached and refreshed in two ways: appends mark affected
// subjects stale and enqueue them for background recomputation, while
// reads that hit a stale projection recompute it synchronously so callers
// always observe their own writes.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/cvmap/cvmap/internal/adapters/eventlog"
	refreshqueue "github.com/cvmap/cvmap/internal/adapters/mq/queue"
	workerpool "github.com/cvmap/cvmap/internal/adapters/mq/worker"
	"github.com/cvmap/cvmap/internal/adapters/rank"
	"github.com/cvmap/cvmap/internal/domain/cluster"
	"github.com/cvmap/cvmap/internal/domain/cooldown"
	"github.com/cvmap/cvmap/internal/domain/karma"
	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/internal/domain/reputation"
	"github.com/cvmap/cvmap/pkg/logger"
	"github.com/cvmap/cvmap/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize        = 10_000
	defaultVoteCooldown     = 24 * time.Hour
	defaultCredibilityFloor = 20.0
	defaultMaxPerPage       = 100
)

// cvmProjection is a cached reputation view of one CVM. version counts
// invalidations: a recompute only clears the stale flag when the version
// it observed before reading the log is still current, so an append
// landing mid-recompute is never masked. All fields are guarded by
// Service.projMu.
type cvmProjection struct {
	cvm     model.Cvm
	stale   bool
	version uint64
}

// identProjection is a cached trust view of one identity. Same versioning
// and locking rules as cvmProjection.
type identProjection struct {
	info    model.IdentInfo
	stale   bool
	version uint64
}

// Service implements the registry operations over the event log.
type Service struct {
	mu sync.RWMutex

	// Core components
	log       *eventlog.Log
	rep       *reputation.Engine
	karma     *karma.Engine
	grid      *cluster.Grid
	board     rank.Store
	cooldowns cooldown.Tracker

	refreshQueue refreshqueue.Queue
	workerPool   *workerpool.Pool

	// Projection caches
	projMu sync.RWMutex
	cvms   map[string]*cvmProjection
	idents map[string]*identProjection

	// Configuration
	workerCount      int
	queueSize        int
	voteCooldown     time.Duration
	credibilityFloor float64
	maxPerPage       int

	// State
	started bool

	// Logging
	logger logger.Logger

	now func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of refresh worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the refresh queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithVoteCooldown sets how long a repeat vote on the same CVM is rejected.
func WithVoteCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.voteCooldown = d
		}
	}
}

// WithCredibilityFloor sets the minimum credibility required to vote or
// report.
func WithCredibilityFloor(floor float64) Option {
	return func(s *Service) {
		s.credibilityFloor = floor
	}
}

// WithMaxPerPage caps the perPage value accepted by paged queries.
func WithMaxPerPage(max int) Option {
	return func(s *Service) {
		if max > 0 {
			s.maxPerPage = max
		}
	}
}

// WithReputationEngine overrides the CVM reputation engine.
func WithReputationEngine(e *reputation.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.rep = e
		}
	}
}

// WithKarmaEngine overrides the identity karma engine.
func WithKarmaEngine(e *karma.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.karma = e
		}
	}
}

// WithClusterer overrides the viewport clusterer.
func WithClusterer(g *cluster.Grid) Option {
	return func(s *Service) {
		if g != nil {
			s.grid = g
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		voteCooldown:     defaultVoteCooldown,
		credibilityFloor: defaultCredibilityFloor,
		maxPerPage:       defaultMaxPerPage,
		cvms:             make(map[string]*cvmProjection),
		idents:           make(map[string]*identProjection),
		now:              func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rep == nil {
		s.rep = reputation.New()
	}
	if s.karma == nil {
		s.karma = karma.New()
	}
	if s.grid == nil {
		s.grid = cluster.New()
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting registry service...")

	s.log = eventlog.New(eventlog.WithAppendHook(s.onAppend))
	s.board = rank.NewTreapStore(ctx)
	s.cooldowns = cooldown.NewInMemoryTracker(
		cooldown.WithTTL(s.voteCooldown),
	)
	s.refreshQueue = refreshqueue.NewInMemoryQueue(
		refreshqueue.WithCapacity(s.queueSize),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.refreshQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "registry service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Float64("credibilityFloor", s.credibilityFloor),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping registry service...")

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	s.started = false
	s.logger.Info(ctx, "registry service stopped")
}

// onAppend is the log's append hook. It marks the subject's projection
// stale and schedules a background recompute. When the queue is saturated
// the stale mark alone carries the invalidation; the next read recomputes.
func (s *Service) onAppend(sub eventlog.Subject) {
	s.projMu.Lock()
	switch sub.Type {
	case eventlog.SubjectCvm:
		p, ok := s.cvms[sub.ID]
		if !ok {
			p = &cvmProjection{}
			s.cvms[sub.ID] = p
		}
		p.stale = true
		p.version++
	case eventlog.SubjectIdentity:
		p, ok := s.idents[sub.ID]
		if !ok {
			p = &identProjection{}
			s.idents[sub.ID] = p
		}
		p.stale = true
		p.version++
	}
	s.projMu.Unlock()

	if !s.refreshQueue.Enqueue(context.Background(), sub) {
		metrics.RecordStaleFallback()
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"credibilityFloor": s.credibilityFloor,
	}

	if s.started {
		ctx := context.Background()
		identities, cvms := s.log.Counts(ctx)
		stats["queueLength"] = s.refreshQueue.Len(ctx)
		stats["totalEvents"] = s.log.Len(ctx)
		stats["totalIdentities"] = identities
		stats["totalCvms"] = cvms
		stats["cooldownEntries"] = s.cooldowns.Size()

		metrics.UpdateQueueSize(s.refreshQueue.Len(ctx))
		metrics.UpdateTrackedIdentities(identities)
		metrics.UpdateTrackedCvms(cvms)
	}

	return stats
}
