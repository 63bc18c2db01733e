package responses

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SubmissionRecord is one completed module as received from a device.
type SubmissionRecord struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     string            `gorm:"column:event_id;uniqueIndex" json:"event_id"`
	Participant string            `gorm:"column:participant;index" json:"participant"`
	Kind        string            `gorm:"column:kind;index" json:"kind"`
	ModuleIndex int               `gorm:"column:module_index" json:"module_index"`
	ModuleName  string            `gorm:"column:module_name" json:"module_name,omitempty"`
	Payload     datatypes.JSONMap `gorm:"column:payload;type:jsonb" json:"payload"`
	SentAt      time.Time         `gorm:"column:sent_at" json:"sent_at"`
	ReceivedAt  time.Time         `gorm:"column:received_at" json:"received_at"`
}

func (SubmissionRecord) TableName() string {
	return "study_submissions"
}

type PageVisitRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     string    `gorm:"column:event_id;uniqueIndex" json:"event_id"`
	Participant string    `gorm:"column:participant;index" json:"participant"`
	Page        string    `gorm:"column:page" json:"page"`
	Event       string    `gorm:"column:event" json:"event"`
	ModuleIndex int       `gorm:"column:module_index" json:"module_index"`
	VisitedAt   time.Time `gorm:"column:visited_at;index" json:"visited_at"`
}

func (PageVisitRecord) TableName() string {
	return "study_page_visits"
}
