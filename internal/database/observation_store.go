package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tryexperimenter/experimenter-api/internal/models"
	"github.com/tryexperimenter/experimenter-api/internal/services"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObservationStore is the Postgres implementation of the submission
// workflow's persistence surface.
type ObservationStore struct {
	db *gorm.DB
}

func NewObservationStore(db *gorm.DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// ResolveUser maps a public_user_id to its internal user via user_lookups.
// More than one lookup row is a consistency violation, not a pick-one.
func (s *ObservationStore) ResolveUser(ctx context.Context, publicUserID string) (*services.UserRef, error) {
	var lookups []models.UserLookup
	if err := s.db.WithContext(ctx).
		Where("public_user_id = ?", publicUserID).
		Find(&lookups).Error; err != nil {
		return nil, fmt.Errorf("query user_lookups: %w", err)
	}

	switch len(lookups) {
	case 0:
		return nil, nil
	case 1:
		return &services.UserRef{
			UserLookupID: lookups[0].ID.String(),
			UserID:       lookups[0].UserID.String(),
			Status:       lookups[0].Status,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", services.ErrLookupConflict, publicUserID)
	}
}

// RetireActive is a single conditional update returning the affected id,
// so there is no read-then-write window between finding the active row and
// flipping it.
func (s *ObservationStore) RetireActive(ctx context.Context, userID, observationPromptID string) (string, error) {
	var retired []models.Observation
	result := s.db.WithContext(ctx).
		Model(&retired).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("user_id = ? AND observation_prompt_id = ? AND status = ?", userID, observationPromptID, "active").
		Update("status", "inactive")
	if result.Error != nil {
		return "", fmt.Errorf("retire active observation: %w", result.Error)
	}
	if len(retired) == 0 {
		return "", nil
	}
	return retired[0].ID.String(), nil
}

func (s *ObservationStore) InsertObservation(ctx context.Context, userID, observationPromptID, visibility, observation string) error {
	obs, err := newObservation(userID, observationPromptID, visibility, observation)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(obs).Error; err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *ObservationStore) Reactivate(ctx context.Context, observationID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Observation{}).
		Where("id = ?", observationID).
		Update("status", "active")
	if result.Error != nil {
		return fmt.Errorf("reactivate observation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reactivate observation: no row with id %s", observationID)
	}
	return nil
}

// SubmitInTx retires and inserts inside one transaction; a failed insert
// rolls the retire back, no compensation needed.
func (s *ObservationStore) SubmitInTx(ctx context.Context, userID, observationPromptID, visibility, observation string) error {
	obs, err := newObservation(userID, observationPromptID, visibility, observation)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Observation{}).
			Where("user_id = ? AND observation_prompt_id = ? AND status = ?", userID, observationPromptID, "active").
			Update("status", "inactive").Error; err != nil {
			return fmt.Errorf("retire active observation: %w", err)
		}
		if err := tx.Create(obs).Error; err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
		return nil
	})
}

func newObservation(userID, observationPromptID, visibility, observation string) (*models.Observation, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("bad user_id %q: %w", userID, err)
	}
	pid, err := uuid.Parse(observationPromptID)
	if err != nil {
		return nil, fmt.Errorf("bad observation_prompt_id %q: %w", observationPromptID, err)
	}
	return &models.Observation{
		ID:                  uuid.New(),
		UserID:              uid,
		ObservationPromptID: pid,
		Observation:         observation,
		Visibility:          visibility,
		Status:              "active",
	}, nil
}
