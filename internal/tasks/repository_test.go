package tasks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*postgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return &postgresRepository{db: sqlx.NewDb(raw, "postgres")}, mock
}

var taskColumns = []string{
	"id", "title", "description", "assigned_user", "created_by", "project_id",
	"location", "user_location", "latitude", "longitude", "start_date", "end_date",
	"status", "priority", "progress_image", "created_at", "updated_at",
	"created_by_username", "assigned_user_username", "project_name",
}

func TestGetTaskJoinsNames(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()
	creator := uuid.New()

	mock.ExpectQuery(`LEFT JOIN users creator ON creator.id = t.created_by.*WHERE t.id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(
			id.String(), "Plant seedlings", "", nil, creator.String(), nil,
			"Block A", "", -1.94, 30.06, nil, nil,
			"Pending", "High", nil, fixedNow, fixedNow,
			"amina", nil, nil,
		))

	task, err := repo.Get(context.Background(), id)

	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Plant seedlings", task.Title)
	require.NotNil(t, task.CreatedByUsername)
	assert.Equal(t, "amina", *task.CreatedByUsername)
	assert.Nil(t, task.AssignedUser)
	require.NotNil(t, task.Latitude)
	assert.InDelta(t, -1.94, *task.Latitude, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskMissingReturnsNil(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery(`WHERE t.id = \$1`).WithArgs(id).WillReturnError(sql.ErrNoRows)

	task, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestUpdateProgressMissingTask(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(id, StatusCompleted, "Musanze", nil, nil, "tasks/k.png", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	task, err := repo.UpdateProgress(context.Background(), ProgressUpdate{
		TaskID:        id,
		Status:        StatusCompleted,
		UserLocation:  "Musanze",
		ProgressImage: "tasks/k.png",
		UpdatedAt:     fixedNow,
	})

	require.NoError(t, err)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlantedTreesFilters(t *testing.T) {
	repo, mock := newMockRepository(t)
	projectID := uuid.New()
	since := fixedNow.Add(-24 * time.Hour)

	mock.ExpectQuery(`t.status = 'Completed'.*AND t.project_id = \$1 AND t.updated_at >= \$2 ORDER BY t.updated_at DESC`).
		WithArgs(projectID, since).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "description", "project_id", "project_name", "planted_by",
			"location", "user_location", "latitude", "longitude", "planted_date",
		}).AddRow(uuid.New().String(), "Tree planting", "", projectID.String(), "Ridge", "amina",
			"Block A", "Block A", -1.9, 30.1, fixedNow))

	trees, err := repo.PlantedTrees(context.Background(), TreeFilter{ProjectID: &projectID, Since: &since})

	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, "amina", *trees[0].PlantedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPlantedTrees(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks t`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))

	count, err := repo.CountPlantedTrees(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), count)
}

func TestDeleteReportsMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM tasks WHERE id = \$1`).WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}
