package models

import (
	"time"

	"github.com/google/uuid"
)

// ExperimentPrompt is an actionable suggestion within a sub-group, ordered
// by DisplayOrder ascending.
type ExperimentPrompt struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubGroupID       uuid.UUID `gorm:"type:uuid;not null;index" json:"sub_group_id"`
	ExperimentPrompt string    `gorm:"type:text;not null" json:"experiment_prompt"`
	DisplayOrder     int       `gorm:"not null" json:"display_order"`
	CreatedAt        time.Time `json:"created_at"`
}

// ObservationPrompt is a reflection question tied to one experiment prompt.
type ObservationPrompt struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExperimentPromptID uuid.UUID `gorm:"type:uuid;not null;index" json:"experiment_prompt_id"`
	ObservationPrompt  string    `gorm:"type:text;not null" json:"observation_prompt"`
	DisplayOrder       int       `gorm:"not null" json:"display_order"`
	CreatedAt          time.Time `json:"created_at"`
}
