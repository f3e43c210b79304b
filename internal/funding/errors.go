package funding

import (
	"fmt"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/database"
)

var (
	ErrProjectNotFound     = apperrors.New(apperrors.KindNotFound, "project not found")
	ErrCampaignNotFound    = apperrors.New(apperrors.KindNotFound, "campaign not found")
	ErrCreditNotFound      = apperrors.New(apperrors.KindNotFound, "credit batch not found")
	ErrTransactionNotFound = apperrors.New(apperrors.KindNotFound, "transaction not found")
	ErrAlreadyVerified     = apperrors.New(apperrors.KindInvalidState, "credit batch is already verified")
	ErrCampaignClosed      = apperrors.New(apperrors.KindInvalidState, "campaign is closed")
)

// InsufficientCredits carries both sides of a rejected sale.
type InsufficientCredits struct {
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

func insufficientCredits(requested, available int64) error {
	return apperrors.New(apperrors.KindInsufficientCredits,
		fmt.Sprintf("insufficient credits: available %d, requested %d", available, requested)).
		WithDetails(InsufficientCredits{Requested: requested, Available: available})
}

// AsInsufficientCredits extracts the requested/available pair from a sale rejection.
func AsInsufficientCredits(err error) (InsufficientCredits, bool) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind() != apperrors.KindInsufficientCredits {
		return InsufficientCredits{}, false
	}
	details, ok := appErr.Details().(InsufficientCredits)
	return details, ok
}

func invalidArgument(format string, args ...any) error {
	return apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf(format, args...))
}

// classify keeps typed errors raised inside a transaction callback and maps
// driver errors onto the shared taxonomy, so a duplicate receipt number is a
// conflict rather than a persistence failure.
func classify(err error, action string) error {
	return database.Classify(err, action)
}
