package planting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateRecord(ctx context.Context, record *PlantingRecord) error
	RecordsByProject(ctx context.Context, projectID uuid.UUID) ([]PlantingRecord, error)
	RecordsByUser(ctx context.Context, userID uuid.UUID) ([]PlantingRecord, error)
	DeleteRecord(ctx context.Context, id uuid.UUID) (bool, error)

	CreateContribution(ctx context.Context, contribution *Contribution) error
	ContributionsByUser(ctx context.Context, userID uuid.UUID) ([]Contribution, error)
	ContributionsByProject(ctx context.Context, projectID uuid.UUID) ([]Contribution, error)
	DeleteContribution(ctx context.Context, id uuid.UUID) (bool, error)
	SumQuantity(ctx context.Context, userID uuid.UUID, activityType string) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateRecord(ctx context.Context, record *PlantingRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create planting record: %w", err)
	}
	return nil
}

func (r *gormRepository) RecordsByProject(ctx context.Context, projectID uuid.UUID) ([]PlantingRecord, error) {
	return r.records(ctx, "project_id = ?", projectID)
}

func (r *gormRepository) RecordsByUser(ctx context.Context, userID uuid.UUID) ([]PlantingRecord, error) {
	return r.records(ctx, "user_id = ?", userID)
}

func (r *gormRepository) records(ctx context.Context, where string, arg uuid.UUID) ([]PlantingRecord, error) {
	records := []PlantingRecord{}
	err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("date_planted DESC, created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list planting records: %w", err)
	}
	return records, nil
}

func (r *gormRepository) DeleteRecord(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&PlantingRecord{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete planting record: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateContribution(ctx context.Context, contribution *Contribution) error {
	if err := r.db.WithContext(ctx).Create(contribution).Error; err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

func (r *gormRepository) ContributionsByUser(ctx context.Context, userID uuid.UUID) ([]Contribution, error) {
	return r.contributions(ctx, "user_id = ?", userID)
}

func (r *gormRepository) ContributionsByProject(ctx context.Context, projectID uuid.UUID) ([]Contribution, error) {
	return r.contributions(ctx, "project_id = ?", projectID)
}

func (r *gormRepository) contributions(ctx context.Context, where string, arg uuid.UUID) ([]Contribution, error) {
	list := []Contribution{}
	err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("date DESC, created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	return list, nil
}

func (r *gormRepository) DeleteContribution(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&Contribution{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete contribution: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) SumQuantity(ctx context.Context, userID uuid.UUID, activityType string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&Contribution{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("user_id = ? AND activity_type = ?", userID, activityType).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum contributions: %w", err)
	}
	return total, nil
}
