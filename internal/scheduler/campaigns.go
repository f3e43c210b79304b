package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CampaignLedger is the part of the funding service the refresher drives.
type CampaignLedger interface {
	RefreshCampaignTotals(ctx context.Context, limit int) ([]uuid.UUID, error)
	RecomputeCampaign(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}

// CampaignRefresherConfig configuration for the campaign refresher
type CampaignRefresherConfig struct {
	Schedule      string        `json:"schedule"`
	BatchSize     int           `json:"batch_size"`
	MaxConcurrent int           `json:"max_concurrent"`
	RunTimeout    time.Duration `json:"run_timeout"`
}

// DefaultCampaignRefresherConfig returns default configuration
func DefaultCampaignRefresherConfig() CampaignRefresherConfig {
	return CampaignRefresherConfig{
		Schedule:      "@every 5m",
		BatchSize:     50,
		MaxConcurrent: 5,
		RunTimeout:    2 * time.Minute,
	}
}

// RefreshResult summarizes one refresher run.
type RefreshResult struct {
	Checked   int           `json:"checked"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// CampaignRefresher periodically reconciles funding_campaigns.current_amount with
// the donation log. Runs never overlap.
type CampaignRefresher struct {
	cron    *cron.Cron
	ledger  CampaignLedger
	logger  *zap.Logger
	config  CampaignRefresherConfig
	mu      sync.Mutex
	entryID cron.EntryID
	running bool
	runs    atomic.Int64
}

// NewCampaignRefresher creates a refresher; the schedule is validated up front.
func NewCampaignRefresher(ledger CampaignLedger, logger *zap.Logger, config CampaignRefresherConfig) (*CampaignRefresher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ValidateSchedule(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", config.Schedule, err)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultCampaignRefresherConfig().BatchSize
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultCampaignRefresherConfig().RunTimeout
	}

	cronLogger := zapCronLogger{logger.Sugar()}
	return &CampaignRefresher{
		cron:   cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		ledger: ledger,
		logger: logger,
		config: config,
	}, nil
}

// Start registers the job and starts the cron scheduler
func (r *CampaignRefresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("campaign refresher already running")
	}

	entryID, err := r.cron.AddFunc(r.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.RunTimeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("Campaign refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.entryID = entryID
	r.running = true
	r.cron.Start()

	r.logger.Info("Starting campaign refresher",
		zap.String("schedule", r.config.Schedule),
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("max_concurrent", r.config.MaxConcurrent))
	return nil
}

// Stop stops scheduling and waits for a running refresh to finish.
func (r *CampaignRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.logger.Info("Stopping campaign refresher")
	<-r.cron.Stop().Done()
	r.cron.Remove(r.entryID)
	r.running = false
}

// NextRun returns when the job fires next; zero when not running.
func (r *CampaignRefresher) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

// Runs returns the number of completed runs.
func (r *CampaignRefresher) Runs() int64 {
	return r.runs.Load()
}

// RunOnce recomputes one batch of drifted campaigns with bounded concurrency.
// A failure on one campaign does not stop the others.
func (r *CampaignRefresher) RunOnce(ctx context.Context) (RefreshResult, error) {
	start := time.Now()
	defer r.runs.Add(1)

	ids, err := r.ledger.RefreshCampaignTotals(ctx, r.config.BatchSize)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("failed to find stale campaigns: %w", err)
	}

	result := RefreshResult{Checked: len(ids)}
	if len(ids) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxConcurrent)

	for _, id := range ids {
		g.Go(func() error {
			amount, err := r.ledger.RecomputeCampaign(gctx, id)
			if err != nil {
				failed.Add(1)
				r.logger.Warn("Failed to recompute campaign",
					zap.String("campaign_id", id.String()),
					zap.Error(err))
				return nil
			}
			refreshed.Add(1)
			r.logger.Debug("Campaign total refreshed",
				zap.String("campaign_id", id.String()),
				zap.String("current_amount", amount.String()))
			return nil
		})
	}
	_ = g.Wait()

	result.Refreshed = int(refreshed.Load())
	result.Failed = int(failed.Load())
	result.Duration = time.Since(start)

	r.logger.Info("Campaign refresh completed",
		zap.Int("checked", result.Checked),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, ctx.Err()
}

// ValidateSchedule accepts standard five field cron expressions and descriptors
// such as "@hourly" or "@every 5m".
func ValidateSchedule(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := parser.Parse(expr)
	return err
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
