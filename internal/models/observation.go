package models

import (
	"time"

	"github.com/google/uuid"
)

// Observation is a user's free-text answer to an observation prompt.
// The submission workflow keeps at most one 'active' observation per
// (user_id, observation_prompt_id) pair; superseded rows stay around as
// 'inactive' for auditability.
type Observation struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID              uuid.UUID `gorm:"type:uuid;not null;index:idx_observations_user_prompt" json:"user_id"`
	ObservationPromptID uuid.UUID `gorm:"type:uuid;not null;index:idx_observations_user_prompt" json:"observation_prompt_id"`
	Observation         string    `gorm:"type:text" json:"observation"`
	Visibility          string    `gorm:"size:20" json:"visibility"`
	Status              string    `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
