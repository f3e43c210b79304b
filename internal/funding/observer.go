package funding

import (
	"time"

	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/metrics"
)

// Observer receives operational signals from the ledger.
type Observer interface {
	TransactionRecorded(tx *Transaction)
	OperationFailed(operation string, err error)
	OperationCompleted(operation string, d time.Duration)
	NotificationFailed(channel string, err error)
}

type nopObserver struct{}

func (nopObserver) TransactionRecorded(*Transaction) {}
func (nopObserver) OperationFailed(string, error) {}
func (nopObserver) OperationCompleted(string, time.Duration) {}
func (nopObserver) NotificationFailed(string, error) {}

// NopObserver discards every signal.
func NopObserver() Observer { return nopObserver{} }

// telemetryObserver writes structured logs and prometheus metrics.
type telemetryObserver struct {
	logger  *zap.Logger
	metrics *metrics.LedgerMetrics
}

func NewObserver(logger *zap.Logger, m *metrics.LedgerMetrics) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &telemetryObserver{logger: logger, metrics: m}
}

func (o *telemetryObserver) TransactionRecorded(tx *Transaction) {
	var quantity int64
	if tx.Quantity != nil {
		quantity = *tx.Quantity
	}
	amount, _ := tx.Amount.Float64()

	o.metrics.ObserveTransaction(string(tx.Type), quantity, amount)
	o.logger.Info("Ledger transaction recorded",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("project_id", tx.ProjectID.String()),
		zap.String("type", string(tx.Type)),
		zap.Int64("quantity", quantity),
		zap.String("amount", tx.Amount.String()))
}

func (o *telemetryObserver) OperationFailed(operation string, err error) {
	kind := apperrors.KindOf(err)
	o.metrics.IncFailure(operation, string(kind))

	switch kind {
	case apperrors.KindPersistence, apperrors.KindInternal:
		o.logger.Error("Ledger operation failed",
			zap.String("operation", operation),
			zap.String("kind", string(kind)),
			zap.Error(err))
	default:
		o.logger.Info("Ledger operation rejected",
			zap.String("operation", operation),
			zap.String("kind", string(kind)),
			zap.String("reason", err.Error()))
	}
}

func (o *telemetryObserver) OperationCompleted(operation string, d time.Duration) {
	o.metrics.ObserveDuration(operation, d)
}

func (o *telemetryObserver) NotificationFailed(channel string, err error) {
	o.metrics.IncNotificationFailure(channel)
	o.logger.Warn("Post-commit notification failed",
		zap.String("channel", channel),
		zap.Error(err))
}
