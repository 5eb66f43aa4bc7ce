package models

import (
	"time"

	"github.com/google/uuid"
)

// Group is a top-level experimentation program shown to a user.
type Group struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GroupName string    `gorm:"size:255;not null" json:"group_name"`
	CreatedAt time.Time `json:"created_at"`
}

// SubGroup is a week/phase-scoped grouping within a group. Sub-group names
// carry a "Week N" suffix that the message scheduler parses out.
type SubGroup struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GroupID      uuid.UUID `gorm:"type:uuid;not null;index" json:"group_id"`
	SubGroupName string    `gorm:"size:255;not null" json:"sub_group_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// GroupAssignment records a user's participation in a group. Only 'active'
// assignments receive scheduled messages.
type GroupAssignment struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;index" json:"group_id"`
	Status    string    `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
