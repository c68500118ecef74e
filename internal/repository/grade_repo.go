package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-webgrader/internal/models"
)

// GradeRepository persists grading runs and their per-submission records.
type GradeRepository interface {
	CreateRun(ctx context.Context, run *models.GradeRun) error
	CompleteRun(ctx context.Context, runID string, completedAt time.Time) error
	Create(ctx context.Context, record *models.GradeRecord) error
	GetRun(ctx context.Context, runID string) (models.GradeRun, error)
	LatestRun(ctx context.Context) (models.GradeRun, error)
	ListByRun(ctx context.Context, runID string) ([]models.GradeRecord, error)
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

func (r *gradeRepository) CreateRun(ctx context.Context, run *models.GradeRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *gradeRepository) CompleteRun(ctx context.Context, runID string, completedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.GradeRun{}).
		Where("id = ?", runID).
		Update("completed_at", completedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *gradeRepository) Create(ctx context.Context, record *models.GradeRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gradeRepository) GetRun(ctx context.Context, runID string) (models.GradeRun, error) {
	var run models.GradeRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return models.GradeRun{}, err
	}

	return run, nil
}

func (r *gradeRepository) LatestRun(ctx context.Context) (models.GradeRun, error) {
	var run models.GradeRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error; err != nil {
		return models.GradeRun{}, err
	}

	return run, nil
}

func (r *gradeRepository) ListByRun(ctx context.Context, runID string) ([]models.GradeRecord, error) {
	var records []models.GradeRecord
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("student ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
