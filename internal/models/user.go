package models

import (
	"time"

	"github.com/google/uuid"
)

// User is created by the enrollment process; this service only reads it.
type User struct {
	ID                     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email                  string    `gorm:"not null;size:255;uniqueIndex" json:"email"`
	FirstName              string    `gorm:"size:100" json:"first_name"`
	URLStubExperimenterLog string    `gorm:"size:100" json:"url_stub_experimenter_log"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// UserLookup maps an external-facing public_user_id to an internal user.
// At most one row may exist per public_user_id; the resolver treats more
// than one as a fatal consistency error rather than relying on a unique
// constraint, matching how the data is actually provisioned.
type UserLookup struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PublicUserID string    `gorm:"size:100;not null;index" json:"public_user_id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Status       string    `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
