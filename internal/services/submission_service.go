package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tryexperimenter/experimenter-api/internal/alerting"
	"github.com/tryexperimenter/experimenter-api/internal/dto"
)

// ErrLookupConflict means user_lookups holds more than one row for a
// public_user_id. That table is provisioned with at most one row per
// identifier, so a duplicate is a consistency violation and fails the
// request outright.
var ErrLookupConflict = errors.New("multiple user lookup rows for public_user_id")

// UserRef is a resolved user_lookups row.
type UserRef struct {
	UserLookupID string
	UserID       string
	Status       string
}

// ObservationStore is the persistence surface the submission workflow
// needs. RetireActive must be a single conditional update returning the
// affected id, not a read-then-write.
type ObservationStore interface {
	// ResolveUser returns nil with no error when the identifier is unknown.
	ResolveUser(ctx context.Context, publicUserID string) (*UserRef, error)
	// RetireActive marks the pair's active observation inactive and returns
	// its id, or "" when there was none.
	RetireActive(ctx context.Context, userID, observationPromptID string) (string, error)
	InsertObservation(ctx context.Context, userID, observationPromptID, visibility, observation string) error
	Reactivate(ctx context.Context, observationID string) error
	// SubmitInTx runs retire+insert inside one transaction.
	SubmitInTx(ctx context.Context, userID, observationPromptID, visibility, observation string) error
}

// SubmissionService supersedes a user's prior observation for a prompt with
// newly submitted text. The outcome is binary: on any failure the pair's
// active observation is left unchanged (compensated if necessary).
type SubmissionService struct {
	store         ObservationStore
	notifier      *alerting.Notifier
	transactional bool
}

// NewSubmissionService builds the submission workflow. transactional=true
// wraps retire+insert in a single transaction, which drops the need for the
// compensating update while preserving the same external contract; the
// compensation path remains for stores without transactions.
func NewSubmissionService(store ObservationStore, notifier *alerting.Notifier, transactional bool) *SubmissionService {
	return &SubmissionService{store: store, notifier: notifier, transactional: transactional}
}

// Submit records a new active observation for (user, prompt), retiring any
// prior active one.
//
// Two racing submissions for the same pair are not locked against each
// other: after both complete exactly one observation is active, but which
// one wins is undefined and a compensation from the loser can leave the
// winner retired. Left as-is on purpose until product intent says
// otherwise; the transactional mode narrows but does not close the window.
func (s *SubmissionService) Submit(ctx context.Context, req dto.SubmitObservationRequest) error {
	if err := s.submit(ctx, req); err != nil {
		slog.Error("observation submission failed",
			"public_user_id", req.PublicUserID,
			"observation_prompt_id", req.ObservationPromptID,
			"error", err.Error())
		s.notifier.Notify("API | submit_observation", err)
		return err
	}

	slog.Info("created new observation",
		"public_user_id", req.PublicUserID,
		"observation_prompt_id", req.ObservationPromptID)
	return nil
}

func (s *SubmissionService) submit(ctx context.Context, req dto.SubmitObservationRequest) error {
	ref, err := s.store.ResolveUser(ctx, req.PublicUserID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if ref == nil {
		return fmt.Errorf("user_id not found for public_user_id: %s", req.PublicUserID)
	}

	if s.transactional {
		if err := s.store.SubmitInTx(ctx, ref.UserID, req.ObservationPromptID, req.Visibility, req.Observation); err != nil {
			return fmt.Errorf("transactional submit: %w", err)
		}
		return nil
	}

	retiredID, err := s.store.RetireActive(ctx, ref.UserID, req.ObservationPromptID)
	if err != nil {
		return fmt.Errorf("retire prior observation: %w", err)
	}
	if retiredID != "" {
		slog.Info("retired prior observation", "observation_id", retiredID)
	}

	if err := s.store.InsertObservation(ctx, ref.UserID, req.ObservationPromptID, req.Visibility, req.Observation); err != nil {
		s.compensate(ctx, retiredID)
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// compensate reactivates the observation retired earlier in a submission
// whose insert failed. Best effort: a failure here is logged and alerted
// but the submission verdict is already failure either way.
func (s *SubmissionService) compensate(ctx context.Context, retiredID string) {
	if retiredID == "" {
		return
	}
	if err := s.store.Reactivate(ctx, retiredID); err != nil {
		slog.Error("failed to reactivate retired observation", "observation_id", retiredID, "error", err.Error())
		s.notifier.Notify("API | submit_observation", fmt.Errorf("reactivate observation %s: %w", retiredID, err))
		return
	}
	slog.Info("reactivated retired observation after failed insert", "observation_id", retiredID)
}
