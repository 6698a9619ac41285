package service

import (
	"context"
	"errors"
	"time"

	"github.com/cvmap/cvmap/internal/adapters/eventlog"
	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/pkg/metrics"
)

// MapView returns the CVMs and clusters visible in the viewport at the
// given zoom. When actor is non-empty, singleton CVMs carry the actor's
// alreadyVoted personalization. CVMs below the removal floor are excluded.
func (s *Service) MapView(ctx context.Context, actor string, vp model.Viewport, zoom int) ([]model.MapItem, error) {
	if !vp.Valid() {
		return nil, ErrInvalidViewport
	}

	var votes map[string]model.Vote
	if actor != "" {
		votes = s.lastVotes(ctx, actor)
	}

	visible := make([]model.Cvm, 0)
	for _, rec := range s.log.Cvms(ctx) {
		if !vp.Contains(rec.Latitude, rec.Longitude) {
			continue
		}
		cvm, err := s.cvmView(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if s.rep.Removed(cvm.Score) {
			continue
		}
		cvm.AlreadyVoted = votes[cvm.ID]
		visible = append(visible, cvm)
	}

	start := time.Now()
	items := s.grid.Cluster(visible, vp, zoom)
	metrics.RecordClusterQueryLatency(float64(time.Since(start).Milliseconds()))
	return items, nil
}

// lastVotes maps each CVM the actor has voted on to the direction of the
// latest cast. Events arrive ordered, so later casts overwrite earlier ones.
func (s *Service) lastVotes(ctx context.Context, actor string) map[string]model.Vote {
	events, err := s.log.ByIdentity(ctx, actor, time.Time{}, time.Time{})
	if err != nil {
		return nil
	}
	votes := make(map[string]model.Vote)
	for _, e := range events {
		switch e.Kind {
		case model.KindUpvoteCast:
			votes[e.CvmID] = model.VoteUp
		case model.KindDownvoteCast:
			votes[e.CvmID] = model.VoteDown
		}
	}
	return votes
}

// Leaderboard returns one page of the karma ranking. Page numbering is
// 1-based.
func (s *Service) Leaderboard(ctx context.Context, page, perPage int) (model.Page[model.LeaderboardMember], error) {
	if err := s.validatePagination(page, perPage); err != nil {
		return model.Page[model.LeaderboardMember]{}, err
	}

	// The board only moves on identity refresh; settle stale projections
	// so the ranking reflects every append that already happened.
	s.settleIdentities(ctx)

	members, err := s.board.Page(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return model.Page[model.LeaderboardMember]{}, err
	}

	content := make([]model.LeaderboardMember, len(members))
	for i, m := range members {
		content[i] = s.karma.Member(model.IdentInfo{
			Identity:    m.Identity,
			DisplayName: m.DisplayName,
			Karma:       m.Karma,
		})
	}

	return model.NewPage(content, page, perPage, s.board.Count(ctx)), nil
}

// Identity returns the trust projection for an identity.
func (s *Service) Identity(ctx context.Context, identity string) (model.IdentInfo, error) {
	info, err := s.identView(ctx, identity)
	if err != nil {
		return model.IdentInfo{}, ErrNotFound
	}
	return info, nil
}

// IdentityEvents returns one page of an identity's event history, ordered
// by occurrence.
func (s *Service) IdentityEvents(ctx context.Context, identity string, page, perPage int) (model.Page[model.Event], error) {
	if err := s.validatePagination(page, perPage); err != nil {
		return model.Page[model.Event]{}, err
	}

	events, err := s.log.ByIdentity(ctx, identity, time.Time{}, time.Time{})
	if err != nil {
		if errors.Is(err, eventlog.ErrUnknownSubject) {
			return model.Page[model.Event]{}, ErrNotFound
		}
		return model.Page[model.Event]{}, err
	}

	offset := (page - 1) * perPage
	content := []model.Event{}
	if offset < len(events) {
		end := offset + perPage
		if end > len(events) {
			end = len(events)
		}
		content = events[offset:end]
	}

	return model.NewPage(content, page, perPage, len(events)), nil
}

// Cvm returns the reputation projection for a single CVM.
func (s *Service) Cvm(ctx context.Context, cvmID string) (model.Cvm, error) {
	cvm, err := s.cvmView(ctx, cvmID)
	if err != nil {
		return model.Cvm{}, ErrNotFound
	}
	return cvm, nil
}

func (s *Service) validatePagination(page, perPage int) error {
	if page < 1 || perPage < 1 || perPage > s.maxPerPage {
		metrics.RecordMutationRejected("invalid_pagination")
		return ErrInvalidPagination
	}
	return nil
}
