package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateDataset(ctx context.Context, db *gorm.DB, dataset *Dataset) error {
	if err := db.WithContext(ctx).Create(dataset).Error; err != nil {
		return fmt.Errorf("error creating dataset record: %w", err)
	}
	return nil
}

func GetDataset(ctx context.Context, db *gorm.DB, id uuid.UUID) (Dataset, error) {
	var dataset Dataset
	if err := db.WithContext(ctx).First(&dataset, "id = ?", id).Error; err != nil {
		return Dataset{}, fmt.Errorf("error fetching dataset %s: %w", id, err)
	}
	return dataset, nil
}

func CreateJob(ctx context.Context, db *gorm.DB, job *TransformJob) error {
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("error creating job record: %w", err)
	}
	return nil
}

func GetJob(ctx context.Context, db *gorm.DB, id uuid.UUID) (TransformJob, error) {
	var job TransformJob
	if err := db.WithContext(ctx).Omit("Result").First(&job, "id = ?", id).Error; err != nil {
		return TransformJob{}, fmt.Errorf("error fetching job %s: %w", id, err)
	}
	return job, nil
}

func GetJobResult(ctx context.Context, db *gorm.DB, id uuid.UUID) ([]byte, error) {
	var job TransformJob
	if err := db.WithContext(ctx).Select("result").First(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("error fetching result for job %s: %w", id, err)
	}
	return job.Result, nil
}

func ListJobs(ctx context.Context, db *gorm.DB, limit, offset int) ([]TransformJob, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(&TransformJob{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting jobs: %w", err)
	}

	var jobs []TransformJob
	err := db.WithContext(ctx).
		Omit("Result").
		Order("creation_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("error listing jobs: %w", err)
	}
	return jobs, total, nil
}

func UpdateJobStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, status string) error {
	if err := db.WithContext(ctx).Model(&TransformJob{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return fmt.Errorf("error updating status for job %s: %w", id, err)
	}
	return nil
}

func UpdateJobProgress(ctx context.Context, db *gorm.DB, id uuid.UUID, progress float64) error {
	if err := db.WithContext(ctx).Model(&TransformJob{}).Where("id = ?", id).Update("progress", progress).Error; err != nil {
		return fmt.Errorf("error updating progress for job %s: %w", id, err)
	}
	return nil
}

// FinishJob records a job's terminal state. errMsg is stored only when
// non-empty; result only when the job produced one.
func FinishJob(ctx context.Context, db *gorm.DB, id uuid.UUID, status string, errMsg string, result []byte) error {
	updates := map[string]any{
		"status":          status,
		"completion_time": sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
	if errMsg != "" {
		updates["error_message"] = sql.NullString{String: errMsg, Valid: true}
	}
	if result != nil {
		updates["result"] = result
		updates["progress"] = 1.0
	}

	if err := db.WithContext(ctx).Model(&TransformJob{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("error finishing job %s: %w", id, err)
	}
	return nil
}
