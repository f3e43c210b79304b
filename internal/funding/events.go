package funding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EventType string

const (
	EventCreditsIssued    EventType = "credits.issued"
	EventCreditsSold      EventType = "credits.sold"
	EventCreditsVerified  EventType = "credits.verified"
	EventDonationReceived EventType = "donation.received"
	EventCampaignCreated  EventType = "campaign.created"
)

// Event describes a committed ledger change.
type Event struct {
	Type          EventType       `json:"type"`
	ProjectID     uuid.UUID       `json:"project_id"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	CampaignID    *uuid.UUID      `json:"campaign_id,omitempty"`
	Quantity      *int64          `json:"quantity,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// EventPublisher fans committed ledger events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// DonationNotice is what a donor thank-you needs.
type DonationNotice struct {
	DonationID    uuid.UUID
	ProjectID     uuid.UUID
	ProjectName   string
	CampaignID    *uuid.UUID
	DonorName     string
	DonorEmail    string
	Amount        decimal.Decimal
	ReceiptNumber string
	IsRecurring   bool
	ReceivedAt    time.Time
}

// DonorNotifier sends the out-of-band thank-you for a donation.
type DonorNotifier interface {
	SendThankYou(ctx context.Context, notice DonationNotice) error
}

var ErrDispatcherClosed = errors.New("dispatcher closed")

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher runs post-commit side effects on a bounded worker pool. Failures are
// reported to the observer and never reach the caller of the ledger operation.
type Dispatcher struct {
	queue    chan job
	timeout  time.Duration
	observer Observer
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(workers, queueSize int, timeout time.Duration, observer Observer, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if observer == nil {
		observer = NopObserver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		queue:    make(chan job, queueSize),
		timeout:  timeout,
		observer: observer,
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues fn without blocking. A full queue drops the job.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- job{name: name, fn: fn}:
		return nil
	default:
		err := errors.New("notification queue full")
		d.observer.NotificationFailed(name, err)
		return err
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Post-commit job panicked", zap.String("job", j.name), zap.Any("panic", r))
			d.observer.NotificationFailed(j.name, errors.New("panic in post-commit job"))
		}
	}()

	if err := j.fn(ctx); err != nil {
		d.observer.NotificationFailed(j.name, err)
	}
}
