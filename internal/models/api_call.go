package models

import (
	"time"

	"github.com/google/uuid"
)

// APICall is a lightweight usage audit row written for every v1 request.
// Recording it must never interrupt the request it describes.
type APICall struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Environment string    `gorm:"size:40" json:"environment"`
	Endpoint    string    `gorm:"size:255" json:"endpoint"`
	CreatedAt   time.Time `json:"created_at"`
}

func (APICall) TableName() string { return "api_calls" }
