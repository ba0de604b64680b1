package api

import (
	"context"
	"fmt"
	"strings"

	"spectral/internal/encounter"
	"spectral/internal/logging"
	"spectral/internal/services"
	"spectral/internal/store"
	"spectral/internal/workqueue"
)

const maxRejectReasonChars = 500

// ListPendingResponse is one page of the moderation backlog, newest first.
type ListPendingResponse struct {
	Encounters []*encounter.Encounter
	Count      int
	NextToken  string
}

// ListPending pages through encounters awaiting moderation.
func (s *Service) ListPending(ctx context.Context, limit int, token string) (*ListPendingResponse, error) {
	after, err := decodeListToken(token)
	if err != nil {
		return nil, err
	}
	limit = s.clampLimit(limit)

	rows, err := s.store.ListByStatus(ctx, encounter.StatusPending, limit+1, after)
	if err != nil {
		return nil, err
	}

	resp := &ListPendingResponse{Encounters: rows}
	if len(rows) > limit {
		resp.Encounters = rows[:limit]
		last := resp.Encounters[limit-1]
		resp.NextToken = encodeListToken(store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	resp.Count = len(resp.Encounters)
	return resp, nil
}

// Approve moves a pending encounter to approved and enqueues it for
// enhancement. The approval stands even if the enqueue fails; a moderator can
// re-trigger enhancement once the queue recovers.
func (s *Service) Approve(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return services.Wrap(services.ErrValidation, "api", "approve", "encounter id is required", nil)
	}

	moved, err := s.store.UpdateStatusIf(ctx, id, encounter.StatusApproved, encounter.StatusPending)
	if err != nil {
		return err
	}
	if !moved {
		return s.explainMissedTransition(ctx, id, "approve", "only pending encounters can be approved")
	}

	enc, err := s.store.GetEncounter(ctx, id)
	if err != nil {
		return err
	}
	if enc == nil {
		return services.Wrap(services.ErrNotFound, "api", "approve", "encounter not found", nil)
	}

	s.log.InfoContext(ctx, "encounter approved",
		logging.String(logging.FieldEncounterID, id),
		logging.String(logging.FieldEventType, "encounter_approved"))
	return s.enqueueEnhancement(ctx, enc, "approve")
}

// Reject moves a pending encounter to rejected with an optional reason. The
// work queue is never touched.
func (s *Service) Reject(ctx context.Context, id, reason string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return services.Wrap(services.ErrValidation, "api", "reject", "encounter id is required", nil)
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) > maxRejectReasonChars {
		return services.Wrap(services.ErrValidation, "api", "reject",
			fmt.Sprintf("reason must be at most %d characters", maxRejectReasonChars), nil)
	}

	moved, err := s.store.RejectEncounter(ctx, id, reason)
	if err != nil {
		return err
	}
	if !moved {
		return s.explainMissedTransition(ctx, id, "reject", "only pending encounters can be rejected")
	}

	s.log.InfoContext(ctx, "encounter rejected",
		logging.String(logging.FieldEncounterID, id),
		logging.String(logging.FieldEventType, "encounter_rejected"))
	return nil
}

// Enhance re-triggers enhancement for an approved or previously failed
// encounter. Returns whether a message was queued and the status the
// encounter held at the time of the call.
func (s *Service) Enhance(ctx context.Context, id string) (bool, encounter.Status, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, "", services.Wrap(services.ErrValidation, "api", "enhance", "encounter id is required", nil)
	}

	enc, err := s.store.GetEncounter(ctx, id)
	if err != nil {
		return false, "", err
	}
	if enc == nil {
		return false, "", services.Wrap(services.ErrNotFound, "api", "enhance", "encounter not found", nil)
	}

	switch {
	case encounter.Enhanceable(enc.Status):
		if err := s.enqueueEnhancement(ctx, enc, "enhance"); err != nil {
			return false, enc.Status, err
		}
		return true, enc.Status, nil
	case enc.Status == encounter.StatusEnhancing, enc.Status == encounter.StatusEnhanced:
		return false, enc.Status, nil
	default:
		return false, enc.Status, services.Wrap(services.ErrValidation, "api", "enhance",
			fmt.Sprintf("encounter is %s, enhancement requires approval first", enc.Status), nil)
	}
}

func (s *Service) enqueueEnhancement(ctx context.Context, enc *encounter.Encounter, operation string) error {
	msg := workqueue.EnhancementMessage{
		EncounterID:   enc.ID,
		Story:         enc.Story,
		Latitude:      enc.Latitude,
		Longitude:     enc.Longitude,
		Address:       enc.Address,
		EncounterTime: enc.EncounterTime,
	}
	if _, err := s.queue.Enqueue(ctx, msg); err != nil {
		s.log.ErrorContext(ctx, "enqueue enhancement failed",
			logging.String(logging.FieldEncounterID, enc.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "re-trigger enhancement once the queue recovers"))
		return services.Wrap(services.ErrUnavailable, "api", operation, "enhancement could not be queued", err)
	}
	s.log.InfoContext(ctx, "enhancement queued",
		logging.String(logging.FieldEncounterID, enc.ID),
		logging.String(logging.FieldEventType, "enhancement_queued"))
	return nil
}

// explainMissedTransition turns a failed conditional update into the precise
// client error: not found when the row is gone, validation otherwise.
func (s *Service) explainMissedTransition(ctx context.Context, id, operation, requirement string) error {
	enc, err := s.store.GetEncounter(ctx, id)
	if err != nil {
		return err
	}
	if enc == nil {
		return services.Wrap(services.ErrNotFound, "api", operation, "encounter not found", nil)
	}
	return services.Wrap(services.ErrValidation, "api", operation,
		fmt.Sprintf("encounter is %s, %s", enc.Status, requirement), nil)
}
