package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScheduledAction statuses. Actions are created by the assignment process;
// this service only moves them between the message_* states. Pause/cancel
// workflows set 'canceled' out of band.
const (
	ActionMessageToBeScheduled    = "message_to_be_scheduled"
	ActionMessageScheduled        = "message_scheduled"
	ActionMessageFailedToSchedule = "message_failed_to_schedule"
	ActionCanceled                = "canceled"
	ActionDisplayAfterActionTime  = "display_after_action_datetime"
)

// SubGroupActionTemplate holds the reminder email template for a sub-group.
// Subject and body contain {token} placeholders filled at scheduling time.
type SubGroupActionTemplate struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubGroupID   uuid.UUID `gorm:"type:uuid;not null;index" json:"sub_group_id"`
	EmailSubject string    `gorm:"type:text;not null" json:"email_subject"`
	EmailBody    string    `gorm:"type:text;not null" json:"email_body"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubGroupAction is one queued per-user action (a reminder email) with a
// target send time.
type SubGroupAction struct {
	ID                       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID                   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SubGroupActionTemplateID uuid.UUID `gorm:"type:uuid;not null;index" json:"sub_group_action_template_id"`
	ActionDatetime           time.Time `gorm:"not null;index" json:"action_datetime"`
	Status                   string    `gorm:"size:40;not null;index" json:"status"`
	StatusNote               string    `gorm:"type:text" json:"status_note"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// SubGroupActionEmail is the durable audit row written for every
// successfully scheduled message. Column names keep the historical
// twilio_ prefix for provider identifiers.
type SubGroupActionEmail struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubGroupActionID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"sub_group_action_id"`
	Status            string         `gorm:"size:40;not null" json:"status"`
	XMessageID        string         `gorm:"column:twilio_x_message_id;size:255" json:"x_message_id"`
	BatchID           string         `gorm:"column:twilio_batch_id;size:255" json:"batch_id"`
	Sender            string         `gorm:"size:255" json:"sender"`
	Recipient         string         `gorm:"size:255" json:"recipient"`
	EmailSubject      string         `gorm:"type:text" json:"email_subject"`
	EmailBody         string         `gorm:"type:text" json:"email_body"`
	EnqueuedDatetime  time.Time      `json:"enqueued_datetime"`
	ScheduledDatetime time.Time      `json:"scheduled_datetime"`
	ProviderResponse  datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"provider_response"`
	CreatedAt         time.Time      `json:"created_at"`
}
