package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reforest-portal/portal-backend/pkg/apperrors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestWithTxCommits(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE projects").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE projects SET status = 'active'")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	fk := fmt.Errorf("insert: %w", &pq.Error{Code: "23503", Constraint: "project_funding_project_id_fkey"})
	check := &pq.Error{Code: "23514"}
	unique := &pq.Error{Code: "23505"}

	assert.True(t, IsForeignKeyViolation(fk))
	assert.Equal(t, "project_funding_project_id_fkey", Constraint(fk))
	assert.True(t, IsCheckViolation(check))
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsForeignKeyViolation(errors.New("plain")))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", sql.ErrNoRows)))
}

func TestClassify(t *testing.T) {
	fk := &pq.Error{Code: "23503"}
	assert.True(t, apperrors.HasKind(Classify(fk, "save"), apperrors.KindNotFound))
	assert.True(t, apperrors.HasKind(Classify(&pq.Error{Code: "23505"}, "save"), apperrors.KindConflict))
	assert.True(t, apperrors.HasKind(Classify(errors.New("broken pipe"), "save"), apperrors.KindPersistence))
	assert.Nil(t, Classify(nil, "save"))

	typed := apperrors.New(apperrors.KindInvalidState, "closed")
	assert.Same(t, typed, Classify(typed, "save"))
	assert.True(t, IsNoRows(gorm.ErrRecordNotFound))
}

func TestOpenGormLogsFailedStatementsThroughZap(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	db, err := OpenGorm(sqlx.NewDb(raw, "postgres"), zap.New(core))
	require.NoError(t, err)

	mock.ExpectExec("UPDATE projects").WillReturnError(errors.New("connection reset by peer"))
	err = db.Exec("UPDATE projects SET status = 'active'").Error
	require.Error(t, err)

	entries := logs.FilterLoggerName("gorm").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "connection reset by peer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenGormWithoutLoggerDiscards(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	db, err := OpenGorm(sqlx.NewDb(raw, "postgres"), nil)
	require.NoError(t, err)
	assert.Equal(t, gormlogger.Discard, db.Config.Logger)
}
