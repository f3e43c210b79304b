package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"reforest-portal/portal-backend/pkg/apperrors"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
)

func pqCode(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}
	return "", false
}

// IsNoRows reports whether err signals an empty result rather than a failure.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound)
}

func IsForeignKeyViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeForeignKeyViolation
}

func IsUniqueViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeUniqueViolation
}

func IsCheckViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeCheckViolation
}

// Constraint returns the violated constraint name, if any.
func Constraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// Classify maps a repository error onto the application error kinds. Typed
// errors pass through; foreign-key violations mean a referenced row is missing.
func Classify(err error, action string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case IsForeignKeyViolation(err):
		return apperrors.Wrap(apperrors.KindNotFound, err, "referenced record not found")
	case IsUniqueViolation(err):
		return apperrors.Wrap(apperrors.KindConflict, err, "record already exists")
	case IsCheckViolation(err):
		return apperrors.Wrap(apperrors.KindInvalidArgument, err, "value rejected by constraint "+Constraint(err))
	}
	return apperrors.Wrap(apperrors.KindPersistence, err, "failed to "+action)
}
