package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-postsync/domains/schedule"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type scheduleDocumentModel struct {
	Key       string    `gorm:"primaryKey;column:doc_key"`
	Body      string    `gorm:"column:body;type:text;not null"`
	Revision  string    `gorm:"column:revision;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (scheduleDocumentModel) TableName() string { return "schedule_documents" }

// ScheduleGormRepository stores the document as one row; the revision column
// makes every write a compare-and-swap.
type ScheduleGormRepository struct {
	db  *gorm.DB
	key string
}

var _ schedule.IScheduleStore = (*ScheduleGormRepository)(nil)

func NewScheduleGormRepository(db *gorm.DB, key string) *ScheduleGormRepository {
	return &ScheduleGormRepository{db: db, key: key}
}

func (r *ScheduleGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&scheduleDocumentModel{})
}

func (r *ScheduleGormRepository) Fetch(ctx context.Context) (schedule.Snapshot, error) {
	var m scheduleDocumentModel
	if err := r.db.WithContext(ctx).First(&m, "doc_key = ?", r.key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return schedule.Snapshot{}, schedule.ErrNotFound
		}
		return schedule.Snapshot{}, fmt.Errorf("fetch schedule row: %w", err)
	}
	return schedule.Parse([]byte(m.Body), m.Revision)
}

func (r *ScheduleGormRepository) Write(ctx context.Context, raw []byte, expectedRevision string) (string, error) {
	next := uuid.NewString()
	now := time.Now().UTC()

	if expectedRevision == "" {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&scheduleDocumentModel{Key: r.key, Body: string(raw), Revision: next, UpdatedAt: now})
		if res.Error != nil {
			return "", fmt.Errorf("insert schedule row: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return "", schedule.ErrConflict
		}
		return next, nil
	}

	res := r.db.WithContext(ctx).
		Model(&scheduleDocumentModel{}).
		Where("doc_key = ? AND revision = ?", r.key, expectedRevision).
		Updates(map[string]interface{}{
			"body":       string(raw),
			"revision":   next,
			"updated_at": now,
		})
	if res.Error != nil {
		return "", fmt.Errorf("update schedule row: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", schedule.ErrConflict
	}
	return next, nil
}
