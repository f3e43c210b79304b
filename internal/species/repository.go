package species

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, species *TreeSpecies) error
	List(ctx context.Context) ([]TreeSpecies, error)
	Get(ctx context.Context, id uuid.UUID) (*TreeSpecies, error)
	Update(ctx context.Context, species *TreeSpecies) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, species *TreeSpecies) error {
	if err := r.db.WithContext(ctx).Create(species).Error; err != nil {
		return fmt.Errorf("failed to create tree species: %w", err)
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context) ([]TreeSpecies, error) {
	list := []TreeSpecies{}
	if err := r.db.WithContext(ctx).Order("name").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list tree species: %w", err)
	}
	return list, nil
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*TreeSpecies, error) {
	var species TreeSpecies
	err := r.db.WithContext(ctx).First(&species, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tree species: %w", err)
	}
	return &species, nil
}

// Update writes every column except the key and creation time.
func (r *gormRepository) Update(ctx context.Context, species *TreeSpecies) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(species).
		Select("*").
		Omit("id", "created_at").
		Updates(species)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update tree species: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&TreeSpecies{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete tree species: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
