package service

import (
	"context"
	"time"

	"github.com/cvmap/cvmap/internal/adapters/eventlog"
	"github.com/cvmap/cvmap/internal/adapters/rank"
	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/pkg/logger"
	"github.com/cvmap/cvmap/pkg/metrics"
)

// Refresh recomputes the projection for a subject. This is the worker
// entry point; reads hitting a stale projection call the same recompute
// synchronously.
func (s *Service) Refresh(ctx context.Context, sub eventlog.Subject) error {
	switch sub.Type {
	case eventlog.SubjectCvm:
		_, err := s.refreshCvm(ctx, sub.ID)
		return err
	case eventlog.SubjectIdentity:
		_, err := s.refreshIdentity(ctx, sub.ID)
		return err
	}
	return ErrNotFound
}

// refreshCvm folds the CVM's events into a fresh reputation projection
// and caches it.
func (s *Service) refreshCvm(ctx context.Context, id string) (model.Cvm, error) {
	start := time.Now()

	// Version observed before the log read. An append landing after this
	// point bumps it, and the store below then keeps the projection stale
	// so the next read recomputes.
	s.projMu.RLock()
	var seen uint64
	if p, ok := s.cvms[id]; ok {
		seen = p.version
	}
	s.projMu.RUnlock()

	rec, ok := s.log.Cvm(ctx, id)
	if !ok {
		return model.Cvm{}, ErrNotFound
	}
	events, err := s.log.ByCvm(ctx, id, time.Time{}, time.Time{})
	if err != nil {
		return model.Cvm{}, err
	}

	now := s.now()
	score, skippedScore := s.rep.Score(events, now)
	counters, skippedReports := s.rep.RecentlyReported(events, now)
	if skippedScore > 0 || skippedReports > 0 {
		s.logger.Warn(ctx, "skipped malformed events during recompute",
			logger.String("cvmID", id),
			logger.Int("skipped", skippedScore+skippedReports),
		)
	}

	cvm := model.Cvm{
		ID:               rec.ID,
		Latitude:         rec.Latitude,
		Longitude:        rec.Longitude,
		Score:            score,
		RecentlyReported: counters,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        now,
	}

	s.projMu.Lock()
	p, found := s.cvms[id]
	if !found {
		p = &cvmProjection{version: seen}
		s.cvms[id] = p
	}
	p.cvm = cvm
	p.stale = p.version != seen
	s.projMu.Unlock()

	metrics.RecordProjectionRecompute("cvm")
	metrics.RecordProjectionRecomputeLatency(float64(time.Since(start).Milliseconds()))
	return cvm, nil
}

// refreshIdentity folds the identity's events into fresh karma and
// credibility, caches the projection, and repositions the identity on the
// leaderboard.
func (s *Service) refreshIdentity(ctx context.Context, id string) (model.IdentInfo, error) {
	start := time.Now()

	s.projMu.RLock()
	var seen uint64
	if p, ok := s.idents[id]; ok {
		seen = p.version
	}
	s.projMu.RUnlock()

	rec, ok := s.log.Identity(ctx, id)
	if !ok {
		return model.IdentInfo{}, ErrNotFound
	}
	events, err := s.log.ByIdentity(ctx, id, time.Time{}, time.Time{})
	if err != nil {
		return model.IdentInfo{}, err
	}

	sum, skipped := s.karma.Karma(events)
	if skipped > 0 {
		s.logger.Warn(ctx, "skipped malformed events during recompute",
			logger.String("identity", id),
			logger.Int("skipped", skipped),
		)
	}

	info := model.IdentInfo{
		Identity:    rec.Identity,
		DisplayName: rec.DisplayName,
		Credibility: s.karma.Credibility(events),
		Karma:       sum,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   s.now(),
	}

	s.projMu.Lock()
	p, found := s.idents[id]
	if !found {
		p = &identProjection{version: seen}
		s.idents[id] = p
	}
	p.info = info
	p.stale = p.version != seen
	s.projMu.Unlock()

	s.board.Upsert(ctx, rank.Member{
		Identity:    rec.Identity,
		DisplayName: rec.DisplayName,
		Karma:       sum,
		CreatedAt:   rec.CreatedAt,
	})

	metrics.RecordProjectionRecompute("identity")
	metrics.RecordProjectionRecomputeLatency(float64(time.Since(start).Milliseconds()))
	return info, nil
}

// settleIdentities synchronously refreshes every stale identity
// projection. Global reads over the rank store call this first.
func (s *Service) settleIdentities(ctx context.Context) {
	s.projMu.RLock()
	stale := make([]string, 0)
	for id, p := range s.idents {
		if p.stale {
			stale = append(stale, id)
		}
	}
	s.projMu.RUnlock()

	for _, id := range stale {
		if _, err := s.refreshIdentity(ctx, id); err != nil {
			s.logger.Warn(ctx, "settle failed", logger.String("identity", id), logger.Error(err))
		}
	}
}

// cvmView returns the current projection for a CVM, recomputing first if
// it is missing or stale.
func (s *Service) cvmView(ctx context.Context, id string) (model.Cvm, error) {
	s.projMu.RLock()
	var cvm model.Cvm
	fresh := false
	if p, ok := s.cvms[id]; ok && !p.stale {
		cvm = p.cvm
		fresh = true
	}
	s.projMu.RUnlock()

	if fresh {
		return cvm, nil
	}
	return s.refreshCvm(ctx, id)
}

// identView returns the current projection for an identity, recomputing
// first if it is missing or stale.
func (s *Service) identView(ctx context.Context, id string) (model.IdentInfo, error) {
	s.projMu.RLock()
	var info model.IdentInfo
	fresh := false
	if p, ok := s.idents[id]; ok && !p.stale {
		info = p.info
		fresh = true
	}
	s.projMu.RUnlock()

	if fresh {
		return info, nil
	}
	return s.refreshIdentity(ctx, id)
}
