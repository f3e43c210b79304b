package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reforest-portal/portal-backend/pkg/database"
)

// Repository persists tasks. Lookups return nil, nil when the row does not exist.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	List(ctx context.Context) ([]Task, error)
	ListAssigned(ctx context.Context, userID uuid.UUID) ([]Task, error)
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	Update(ctx context.Context, task *Task) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateProgress(ctx context.Context, update ProgressUpdate) (*Task, error)

	PlantedTrees(ctx context.Context, filter TreeFilter) ([]PlantedTree, error)
	CountPlantedTrees(ctx context.Context, since *time.Time) (int64, error)
	TreesByProject(ctx context.Context) ([]ProjectTreeCount, error)
}

// ProgressUpdate is the row change recorded by a status update.
type ProgressUpdate struct {
	TaskID        uuid.UUID
	Status        string
	UserLocation  string
	Latitude      *float64
	Longitude     *float64
	ProgressImage string
	UpdatedAt     time.Time
}

const taskSelect = `
	SELECT t.id, t.title, t.description, t.assigned_user, t.created_by, t.project_id,
		t.location, t.user_location, t.latitude, t.longitude, t.start_date, t.end_date,
		t.status, t.priority, t.progress_image, t.created_at, t.updated_at,
		creator.username AS created_by_username,
		assignee.username AS assigned_user_username,
		p.project_name
	FROM tasks t
	LEFT JOIN users creator ON creator.id = t.created_by
	LEFT JOIN users assignee ON assignee.id = t.assigned_user
	LEFT JOIN projects p ON p.id = t.project_id`

// plantedTreeWhere matches completed tasks with coordinates that describe planting.
const plantedTreeWhere = `
	WHERE t.status = 'Completed'
		AND t.latitude IS NOT NULL
		AND t.longitude IS NOT NULL
		AND (t.title ILIKE '%tree%' OR t.title ILIKE '%plant%'
			OR t.description ILIKE '%tree%' OR t.description ILIKE '%plant%')`

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO tasks (
			id, title, description, assigned_user, created_by, project_id,
			location, user_location, latitude, longitude, start_date, end_date,
			status, priority, created_at, updated_at
		) VALUES (
			:id, :title, :description, :assigned_user, :created_by, :project_id,
			:location, :user_location, :latitude, :longitude, :start_date, :end_date,
			:status, :priority, :created_at, :updated_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Task, error) {
	tasks := []Task{}
	if err := r.db.SelectContext(ctx, &tasks, taskSelect+" ORDER BY t.created_at DESC"); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (r *postgresRepository) ListAssigned(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	tasks := []Task{}
	query := taskSelect + " WHERE t.assigned_user = $1 ORDER BY t.created_at DESC"
	if err := r.db.SelectContext(ctx, &tasks, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list assigned tasks: %w", err)
	}
	return tasks, nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	err := r.db.GetContext(ctx, &task, taskSelect+" WHERE t.id = $1", id)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (r *postgresRepository) Update(ctx context.Context, task *Task) (bool, error) {
	query := `
		UPDATE tasks SET
			title = :title,
			description = :description,
			assigned_user = :assigned_user,
			project_id = :project_id,
			location = :location,
			latitude = :latitude,
			longitude = :longitude,
			start_date = :start_date,
			end_date = :end_date,
			priority = :priority,
			updated_at = :updated_at
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, task)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	return affected(res)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return affected(res)
}

// UpdateProgress records a status change and returns the stored row, or nil
// when the task does not exist.
func (r *postgresRepository) UpdateProgress(ctx context.Context, update ProgressUpdate) (*Task, error) {
	query := `
		UPDATE tasks SET
			status = $2,
			user_location = $3,
			latitude = COALESCE($4, latitude),
			longitude = COALESCE($5, longitude),
			progress_image = $6,
			updated_at = $7
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		update.TaskID, update.Status, update.UserLocation,
		update.Latitude, update.Longitude, update.ProgressImage, update.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return nil, err
	}
	return r.Get(ctx, update.TaskID)
}

func (r *postgresRepository) PlantedTrees(ctx context.Context, filter TreeFilter) ([]PlantedTree, error) {
	query := `
		SELECT t.id, t.title, t.description, t.project_id, p.project_name,
			u.username AS planted_by, t.location, t.user_location,
			t.latitude, t.longitude, t.updated_at AS planted_date
		FROM tasks t
		LEFT JOIN projects p ON p.id = t.project_id
		LEFT JOIN users u ON u.id = t.assigned_user` + plantedTreeWhere

	var args []interface{}
	argCount := 1
	if filter.ProjectID != nil {
		query += fmt.Sprintf(" AND t.project_id = $%d", argCount)
		args = append(args, *filter.ProjectID)
		argCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND t.updated_at >= $%d", argCount)
		args = append(args, *filter.Since)
	}
	query += " ORDER BY t.updated_at DESC"

	trees := []PlantedTree{}
	if err := r.db.SelectContext(ctx, &trees, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list planted trees: %w", err)
	}
	return trees, nil
}

func (r *postgresRepository) CountPlantedTrees(ctx context.Context, since *time.Time) (int64, error) {
	query := "SELECT COUNT(*) FROM tasks t" + plantedTreeWhere
	var args []interface{}
	if since != nil {
		query += " AND t.updated_at >= $1"
		args = append(args, *since)
	}

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count planted trees: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) TreesByProject(ctx context.Context) ([]ProjectTreeCount, error) {
	query := `
		SELECT p.id AS project_id, p.project_name, COUNT(t.id) AS tree_count
		FROM tasks t
		JOIN projects p ON p.id = t.project_id` + plantedTreeWhere + `
		GROUP BY p.id, p.project_name
		ORDER BY tree_count DESC, p.project_name`

	counts := []ProjectTreeCount{}
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count trees by project: %w", err)
	}
	return counts, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffected) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
