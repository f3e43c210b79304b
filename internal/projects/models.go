package projects

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Project is a reforestation site. Funding, tasks and planting records hang off it.
type Project struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string         `json:"project_name" gorm:"column:project_name;not null"`
	Description  *string        `json:"description"`
	Status       string         `json:"status" gorm:"not null"`
	AreaHectares float64        `json:"area_hectares" gorm:"not null"`
	Geometry     datatypes.JSON `json:"geometry,omitempty"` // GeoJSON
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

// BeforeCreate hook for UUID generation
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// StatusChange records one status transition.
type StatusChange struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID  uuid.UUID  `json:"project_id" gorm:"type:uuid;not null"`
	FromStatus string     `json:"from_status" gorm:"not null"`
	Status     string     `json:"status" gorm:"not null"`
	ChangedBy  *uuid.UUID `json:"changed_by,omitempty" gorm:"type:uuid"`
	ChangedAt  time.Time  `json:"changed_at"`
}

func (StatusChange) TableName() string {
	return "project_status_history"
}

// BeforeCreate hook for UUID generation
func (s *StatusChange) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// CreateProjectRequest registers a project. Without area_hectares the area is
// measured from a polygon geometry.
type CreateProjectRequest struct {
	Name         string          `json:"project_name" validate:"required,max=200"`
	Description  *string         `json:"description"`
	AreaHectares *float64        `json:"area_hectares" validate:"omitempty,gte=0"`
	Geometry     json.RawMessage `json:"geometry"`
}

// UpdateProjectRequest changes only the fields that are present.
type UpdateProjectRequest struct {
	Name         *string         `json:"project_name" validate:"omitempty,min=1,max=200"`
	Description  *string         `json:"description"`
	AreaHectares *float64        `json:"area_hectares" validate:"omitempty,gte=0"`
	Geometry     json.RawMessage `json:"geometry"`
}

type ChangeStatusRequest struct {
	Status    string     `json:"status" validate:"required"`
	ChangedBy *uuid.UUID `json:"changed_by"`
}

type ProjectFilter struct {
	Status string
}
