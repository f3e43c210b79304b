package planting

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ActivityTreePlanting = "tree_planting"

// PlantingRecord counts trees of one species planted on a project.
type PlantingRecord struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID       uuid.UUID      `json:"project_id" gorm:"type:uuid;not null"`
	SpeciesID       *uuid.UUID     `json:"species_id" gorm:"type:uuid"`
	UserID          *uuid.UUID     `json:"user_id" gorm:"type:uuid"`
	Quantity        int            `json:"quantity" gorm:"not null"`
	LocationDetails *string        `json:"location_details"`
	DatePlanted     datatypes.Date `json:"date_planted" gorm:"not null"`
	SurvivalRate    *float64       `json:"survival_rate"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (PlantingRecord) TableName() string {
	return "planting_records"
}

func (r *PlantingRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Contribution is volunteer work logged by a community member.
type Contribution struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID      `json:"user_id" gorm:"type:uuid;not null"`
	ProjectID    uuid.UUID      `json:"project_id" gorm:"type:uuid;not null"`
	ActivityType string         `json:"activity_type" gorm:"not null"`
	Quantity     int            `json:"quantity"`
	Date         datatypes.Date `json:"date" gorm:"not null"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (Contribution) TableName() string {
	return "community_contributions"
}

func (c *Contribution) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type CreateRecordRequest struct {
	ProjectID       uuid.UUID  `json:"project_id" validate:"required"`
	SpeciesID       *uuid.UUID `json:"species_id"`
	UserID          *uuid.UUID `json:"user_id"`
	Quantity        int        `json:"quantity" validate:"required,gt=0"`
	LocationDetails *string    `json:"location_details"`
	DatePlanted     string     `json:"date_planted" validate:"required,datetime=2006-01-02"`
	SurvivalRate    *float64   `json:"survival_rate" validate:"omitempty,gte=0,lte=100"`
}

type CreateContributionRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	ProjectID    uuid.UUID `json:"project_id" validate:"required"`
	ActivityType string    `json:"activity_type" validate:"required,max=64"`
	Quantity     int       `json:"quantity" validate:"gte=0"`
	Date         string    `json:"date" validate:"required,datetime=2006-01-02"`
}

// TreesPlanted is a member's planting total across contributions.
type TreesPlanted struct {
	UserID     uuid.UUID `json:"user_id"`
	TotalTrees int64     `json:"total_trees"`
}
