package responses

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&SubmissionRecord{}, &PageVisitRecord{})
}

// SaveSubmission ignores redelivered events.
func (r *Repository) SaveSubmission(ctx context.Context, record *SubmissionRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(record).Error
}

func (r *Repository) SavePageVisit(ctx context.Context, record *PageVisitRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(record).Error
}

func (r *Repository) ListSubmissions(ctx context.Context, participant string, limit int) ([]SubmissionRecord, error) {
	var records []SubmissionRecord
	err := r.db.WithContext(ctx).
		Where("participant = ?", participant).
		Order("sent_at desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *Repository) ListPageVisits(ctx context.Context, participant string, limit int) ([]PageVisitRecord, error) {
	var records []PageVisitRecord
	err := r.db.WithContext(ctx).
		Where("participant = ?", participant).
		Order("visited_at desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}
