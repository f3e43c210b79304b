package tasks

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// Task is a field assignment. The joined name columns are only filled by reads.
type Task struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	Title                string     `json:"title" db:"title"`
	Description          string     `json:"description" db:"description"`
	AssignedUser         *uuid.UUID `json:"assigned_user,omitempty" db:"assigned_user"`
	CreatedBy            *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	ProjectID            *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	Location             string     `json:"location" db:"location"`
	UserLocation         string     `json:"user_location" db:"user_location"`
	Latitude             *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude            *float64   `json:"longitude,omitempty" db:"longitude"`
	StartDate            *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate              *time.Time `json:"end_date,omitempty" db:"end_date"`
	Status               string     `json:"status" db:"status"`
	Priority             string     `json:"priority" db:"priority"`
	ProgressImage        *string    `json:"-" db:"progress_image"`
	ProgressImageURL     string     `json:"progress_image,omitempty" db:"-"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
	CreatedByUsername    *string    `json:"created_by_username,omitempty" db:"created_by_username"`
	AssignedUserUsername *string    `json:"assigned_user_username,omitempty" db:"assigned_user_username"`
	ProjectName          *string    `json:"project_name,omitempty" db:"project_name"`
}

type CreateTaskRequest struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description"`
	AssignedUser *uuid.UUID `json:"assigned_user"`
	CreatedBy    *uuid.UUID `json:"created_by"`
	ProjectID    *uuid.UUID `json:"project_id"`
	Location     string     `json:"location"`
	Latitude     *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64   `json:"longitude" validate:"omitempty,longitude"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	Priority     string     `json:"priority" validate:"omitempty,oneof=Low Medium High"`
}

// UpdateTaskRequest replaces the editable fields. Status moves through UpdateStatus.
type UpdateTaskRequest struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description"`
	AssignedUser *uuid.UUID `json:"assigned_user"`
	ProjectID    *uuid.UUID `json:"project_id"`
	Location     string     `json:"location"`
	Latitude     *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64   `json:"longitude" validate:"omitempty,longitude"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	Priority     string     `json:"priority" validate:"omitempty,oneof=Low Medium High"`
}

// Image is an uploaded progress photo.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

type StatusUpdate struct {
	TaskID       uuid.UUID
	Status       string
	UserLocation string
	Latitude     *float64
	Longitude    *float64
	Image        *Image
}

// TaskImage is the progress photo of a task as a time-limited link.
type TaskImage struct {
	TaskID    uuid.UUID `json:"task_id"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlantedTree is a completed planting task with coordinates.
type PlantedTree struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	ProjectName  *string    `json:"project_name,omitempty" db:"project_name"`
	PlantedBy    *string    `json:"planted_by,omitempty" db:"planted_by"`
	Location     string     `json:"location" db:"location"`
	UserLocation string     `json:"user_location" db:"user_location"`
	Latitude     float64    `json:"latitude" db:"latitude"`
	Longitude    float64    `json:"longitude" db:"longitude"`
	PlantedDate  time.Time  `json:"planted_date" db:"planted_date"`
	DistanceKm   *float64   `json:"distance_km,omitempty" db:"-"`
}

// TreeFilter narrows planted tree queries.
type TreeFilter struct {
	ProjectID *uuid.UUID
	Since     *time.Time
}

type ProjectTreeCount struct {
	ProjectID   uuid.UUID `json:"project_id" db:"project_id"`
	ProjectName string    `json:"project_name" db:"project_name"`
	TreeCount   int64     `json:"tree_count" db:"tree_count"`
}

type TreeStatistics struct {
	TotalTrees     int64              `json:"total_trees"`
	RecentTrees    int64              `json:"recent_trees"`
	TreesByProject []ProjectTreeCount `json:"trees_by_project"`
}
