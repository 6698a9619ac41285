package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cvmap/cvmap/internal/adapters/eventlog"
	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/pkg/logger"
	"github.com/cvmap/cvmap/pkg/metrics"
)

// Register creates a new identity and appends its registration event. The
// display name is optional presentation metadata.
func (s *Service) Register(ctx context.Context, displayName string) (model.IdentInfo, error) {
	identity := uuid.NewString()

	_, err := s.log.Append(ctx, model.Event{
		Kind:       model.KindRegistration,
		Identity:   identity,
		Delta:      s.karma.DeltaFor(model.KindRegistration),
		OccurredAt: s.now(),
	})
	if err != nil {
		return model.IdentInfo{}, err
	}

	if displayName != "" {
		if err := s.log.SetDisplayName(ctx, identity, displayName); err != nil {
			return model.IdentInfo{}, err
		}
	}

	// Synchronous so the identity is on the leaderboard before we return.
	return s.refreshIdentity(ctx, identity)
}

// SetDisplayName updates an identity's display name and invalidates its
// projection.
func (s *Service) SetDisplayName(ctx context.Context, identity, displayName string) error {
	if err := s.log.SetDisplayName(ctx, identity, displayName); err != nil {
		if errors.Is(err, eventlog.ErrUnknownSubject) {
			return ErrUnknownIdentity
		}
		return err
	}
	s.onAppend(eventlog.Subject{Type: eventlog.SubjectIdentity, ID: identity})
	return nil
}

// CastVote records a vote by actor on a CVM. The vote lands as a pair of
// events: a cast event on the actor and a received event attributed to the
// CVM's owner. Repeat votes inside the cooldown window are rejected.
func (s *Service) CastVote(ctx context.Context, actor, cvmID string, direction model.Vote) (model.Cvm, error) {
	if direction != model.VoteUp && direction != model.VoteDown {
		metrics.RecordMutationRejected("invalid_direction")
		return model.Cvm{}, ErrInvalidDirection
	}

	info, err := s.identView(ctx, actor)
	if err != nil {
		metrics.RecordMutationRejected("unknown_identity")
		return model.Cvm{}, ErrUnknownIdentity
	}
	if info.Credibility < s.credibilityFloor {
		metrics.RecordMutationRejected("insufficient_credibility")
		return model.Cvm{}, ErrInsufficientCredibility
	}

	rec, ok := s.log.Cvm(ctx, cvmID)
	if !ok {
		metrics.RecordMutationRejected("not_found")
		return model.Cvm{}, ErrNotFound
	}

	now := s.now()
	key := actor + "|" + cvmID
	if s.cooldowns.SeenAndRecord(ctx, key, now) {
		metrics.RecordMutationRejected("duplicate_vote")
		return model.Cvm{}, ErrDuplicateVote
	}

	castKind, receivedKind := model.KindUpvoteCast, model.KindUpvoteReceived
	if direction == model.VoteDown {
		castKind, receivedKind = model.KindDownvoteCast, model.KindDownvoteReceived
	}

	if err := s.appendPair(ctx,
		model.Event{
			Kind:       castKind,
			Identity:   actor,
			CvmID:      cvmID,
			Delta:      s.karma.DeltaFor(castKind),
			OccurredAt: now,
		},
		model.Event{
			Kind:       receivedKind,
			Identity:   rec.Owner,
			CvmID:      cvmID,
			Delta:      s.karma.DeltaFor(receivedKind),
			OccurredAt: now,
		},
	); err != nil {
		// Roll back the cooldown so the vote can be retried immediately.
		s.cooldowns.Unrecord(ctx, key)
		return model.Cvm{}, err
	}

	return s.cvmView(ctx, cvmID)
}

// SubmitReport files a report by actor against the CVM at the given
// coordinates. Reporting a location with no known CVM registers one, owned
// by the reporter.
func (s *Service) SubmitReport(ctx context.Context, actor string, lat, lon float64, reason model.ReportReason) (model.Cvm, error) {
	if !reason.Valid() {
		metrics.RecordMutationRejected("invalid_reason")
		return model.Cvm{}, ErrInvalidReason
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		metrics.RecordMutationRejected("invalid_coordinates")
		return model.Cvm{}, ErrInvalidCoordinates
	}

	info, err := s.identView(ctx, actor)
	if err != nil {
		metrics.RecordMutationRejected("unknown_identity")
		return model.Cvm{}, ErrUnknownIdentity
	}
	if info.Credibility < s.credibilityFloor {
		metrics.RecordMutationRejected("insufficient_credibility")
		return model.Cvm{}, ErrInsufficientCredibility
	}

	now := s.now()
	cvmID, owner, created := s.resolveLocation(ctx, actor, lat, lon)

	received := model.Event{
		Kind:       model.KindReportReceived,
		Identity:   owner,
		CvmID:      cvmID,
		Delta:      s.karma.DeltaFor(model.KindReportReceived),
		Reason:     reason,
		OccurredAt: now,
	}
	if created {
		// Coordinates on the creating event make the CVM replayable.
		received.Creates = true
		received.Latitude = lat
		received.Longitude = lon
	}

	if err := s.appendPair(ctx,
		received,
		model.Event{
			Kind:       model.KindReportCast,
			Identity:   actor,
			CvmID:      cvmID,
			Delta:      s.karma.DeltaFor(model.KindReportCast),
			Reason:     reason,
			OccurredAt: now,
		},
	); err != nil {
		return model.Cvm{}, err
	}

	if created {
		s.logger.Info(ctx, "registered CVM from report",
			logger.String("cvmID", cvmID),
			logger.Float64("latitude", lat),
			logger.Float64("longitude", lon),
		)
	}

	return s.cvmView(ctx, cvmID)
}

// resolveLocation finds the CVM at exact coordinates, or allocates a new
// one owned by the reporter.
func (s *Service) resolveLocation(ctx context.Context, actor string, lat, lon float64) (cvmID, owner string, created bool) {
	for _, rec := range s.log.Cvms(ctx) {
		if rec.Latitude == lat && rec.Longitude == lon {
			return rec.ID, rec.Owner, false
		}
	}
	return uuid.NewString(), actor, true
}

// appendPair appends two events that belong to one logical mutation.
// The log has no multi-event transaction, so a failed second append is
// surfaced to the caller; both projections recompute from whatever
// actually landed.
func (s *Service) appendPair(ctx context.Context, first, second model.Event) error {
	if _, err := s.log.Append(ctx, first); err != nil {
		return err
	}
	if _, err := s.log.Append(ctx, second); err != nil {
		s.logger.Error(ctx, "second append of pair failed",
			logger.String("kind", string(second.Kind)),
			logger.Error(err),
		)
		return err
	}
	return nil
}
