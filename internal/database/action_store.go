package database

import (
	"context"
	"fmt"

	"github.com/tryexperimenter/experimenter-api/internal/models"
	"github.com/tryexperimenter/experimenter-api/internal/services"
	"gorm.io/gorm"
)

// ActionStore persists message-scheduling outcomes.
type ActionStore struct {
	db *gorm.DB
}

func NewActionStore(db *gorm.DB) *ActionStore {
	return &ActionStore{db: db}
}

// UpdateStatuses writes all status transitions of one scheduling run in a
// single transaction.
func (s *ActionStore) UpdateStatuses(ctx context.Context, updates []services.ActionStatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&models.SubGroupAction{}).
				Where("id = ?", u.ActionID).
				Updates(map[string]interface{}{
					"status":      u.Status,
					"status_note": u.StatusNote,
				}).Error; err != nil {
				return fmt.Errorf("update sub_group_action %s: %w", u.ActionID, err)
			}
		}
		return nil
	})
}

// RecordEmails appends the audit rows for successfully scheduled messages.
func (s *ActionStore) RecordEmails(ctx context.Context, emails []models.SubGroupActionEmail) error {
	if len(emails) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(emails, 100).Error; err != nil {
		return fmt.Errorf("insert sub_group_action_emails: %w", err)
	}
	return nil
}
