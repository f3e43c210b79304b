package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, project *Project) error
	List(ctx context.Context, filter ProjectFilter) ([]Project, error)
	Get(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) (bool, error)
	// ChangeStatus moves the project from change.FromStatus to change.Status and
	// appends change to the history in one transaction. It reports false when the
	// project is no longer in FromStatus.
	ChangeStatus(ctx context.Context, change *StatusChange) (bool, error)
	History(ctx context.Context, projectID uuid.UUID) ([]StatusChange, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, project *Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	list := []Project{}
	if err := query.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return list, nil
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// Update writes the editable columns. Status only changes through ChangeStatus.
func (r *gormRepository) Update(ctx context.Context, project *Project) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(project).
		Select("project_name", "description", "area_hectares", "geometry", "updated_at").
		Updates(project)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update project: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ChangeStatus(ctx context.Context, change *StatusChange) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Project{}).
			Where("id = ? AND status = ?", change.ProjectID, change.FromStatus).
			Updates(map[string]any{"status": change.Status, "updated_at": change.ChangedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return tx.Create(change).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to change project status: %w", err)
	}
	return changed, nil
}

func (r *gormRepository) History(ctx context.Context, projectID uuid.UUID) ([]StatusChange, error) {
	history := []StatusChange{}
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("changed_at").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list project status history: %w", err)
	}
	return history, nil
}
