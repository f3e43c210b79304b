package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"reforest-portal/portal-backend/pkg/cache"
	"reforest-portal/portal-backend/pkg/workflows"
)

const (
	opIssue          = "issue_credits"
	opSell           = "sell_credits"
	opDonate         = "donate"
	opVerify         = "verify_credits"
	opCreateCampaign = "create_campaign"
	opGetCampaign    = "get_campaign"
	opListCampaigns  = "list_campaigns"
	opProjectFunding = "project_funding"
	opMarketPricing  = "market_pricing"
	opBalance        = "credit_balance"

	marketPricingWindow = 30 * 24 * time.Hour
	sideEffectTimeout   = 10 * time.Second
)

var validate = validator.New()

// Service implements the funding ledger: an append-only log of credit issuance,
// credit sales and donations with balances derived on read.
type Service struct {
	repo       Repository
	logger     *zap.Logger
	observer   Observer
	balances   cache.Store
	balanceTTL time.Duration
	dispatcher *Dispatcher
	publisher  EventPublisher
	notifier   DonorNotifier
	verifyFlow *workflows.StateMachine
	now        func() time.Time
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithBalanceCache enables the read-through cache behind Balance. Sales never read it.
func WithBalanceCache(store cache.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.balances = store
		s.balanceTTL = ttl
	}
}

// WithDispatcher runs post-commit side effects asynchronously.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithDonorNotifier(n DonorNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new funding ledger service
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:       repo,
		logger:     logger,
		observer:   NopObserver(),
		verifyFlow: workflows.NewStateMachine(workflows.CreditVerificationTransitions),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =====================================================
// Credits
// =====================================================

// IssueCredits appends a carbon_issue row. Without an explicit quantity and with
// auto_calculate set, the quantity is derived from the project's completed tasks and
// restored area inside the same transaction as the append.
func (s *Service) IssueCredits(ctx context.Context, req IssueCreditsRequest) (result *IssueCreditsResult, err error) {
	start := time.Now()
	defer func() { s.track(opIssue, start, err) }()

	if req.ProjectID == uuid.Nil {
		return nil, invalidArgument("project_id is required")
	}
	if req.Quantity != nil && *req.Quantity == 0 && req.AutoCalculate {
		req.Quantity = nil
	}
	if req.Quantity == nil && !req.AutoCalculate {
		return nil, invalidArgument("quantity is required unless auto_calculate is set")
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, invalidArgument("quantity must be positive")
	}
	status := req.VerificationStatus
	if status == "" {
		status = VerificationPending
	}
	if !status.Valid() {
		return nil, invalidArgument("verification_status must be %q or %q", VerificationPending, VerificationVerified)
	}

	now := s.now()
	var row *Transaction

	err = s.repo.InTx(ctx, func(tx LedgerTx) error {
		project, err := tx.LockProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return ErrProjectNotFound
		}

		var quantity int64
		if req.Quantity != nil {
			quantity = *req.Quantity
		} else {
			impact, err := tx.ProjectImpact(ctx, req.ProjectID)
			if err != nil {
				return err
			}
			if impact != nil {
				quantity = CalculateCredits(impact.TreesPlanted, impact.AreaHectares)
			}
		}

		row = newIssueTransaction(req, quantity, status, now)
		return tx.InsertTransaction(ctx, row)
	})
	if err != nil {
		return nil, classify(err, "issue credits")
	}

	s.observer.TransactionRecorded(row)
	s.invalidateBalance(ctx, row.ProjectID)
	s.publish(Event{
		Type:          EventCreditsIssued,
		ProjectID:     row.ProjectID,
		TransactionID: &row.ID,
		Quantity:      row.Quantity,
		Amount:        decimal.Zero,
		OccurredAt:    now,
	})

	return &IssueCreditsResult{
		CreditID:           row.ID,
		Quantity:           *row.Quantity,
		VerificationStatus: status,
	}, nil
}

func newIssueTransaction(req IssueCreditsRequest, quantity int64, status VerificationStatus, now time.Time) *Transaction {
	standard := DefaultCreditStandard
	vintage := now.Year()
	row := &Transaction{
		ID:                 uuid.New(),
		ProjectID:          req.ProjectID,
		Type:               TypeCarbonIssue,
		Quantity:           &quantity,
		Amount:             decimal.Zero,
		Note:               optionalString(req.Note),
		VerificationStatus: &status,
		CreditStandard:     &standard,
		VintageYear:        &vintage,
		CreatedAt:          now,
	}
	if status == VerificationVerified {
		row.VerifiedAt = &now
	}
	return row
}

// SellCredits appends a carbon_sale row if the project holds enough credits. The
// balance fold and the append run under the project row lock, so concurrent sales
// against one project cannot oversell.
func (s *Service) SellCredits(ctx context.Context, req SellCreditsRequest) (result *SellCreditsResult, err error) {
	start := time.Now()
	defer func() { s.track(opSell, start, err) }()

	if req.ProjectID == uuid.Nil {
		return nil, invalidArgument("project_id is required")
	}
	if req.Quantity <= 0 {
		return nil, invalidArgument("quantity must be a positive integer")
	}
	if !req.Amount.IsPositive() {
		return nil, invalidArgument("amount must be positive")
	}
	price := DefaultPricePerCredit(req.Amount, req.Quantity)
	if req.PricePerCredit != nil {
		if !req.PricePerCredit.IsPositive() {
			return nil, invalidArgument("price_per_credit must be positive")
		}
		price = *req.PricePerCredit
	}
	buyerInfo, err := optionalJSON(req.BuyerInfo, "buyer_info")
	if err != nil {
		return nil, err
	}
	platform := strings.TrimSpace(req.Platform)
	if platform == "" {
		platform = DefaultPlatform
	}

	now := s.now()
	var (
		row       *Transaction
		remaining int64
	)

	err = s.repo.InTx(ctx, func(tx LedgerTx) error {
		project, err := tx.LockProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return ErrProjectNotFound
		}

		balance, err := tx.CreditBalance(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if req.Quantity > balance.Available {
			return insufficientCredits(req.Quantity, balance.Available)
		}

		status := TransactionStatusCompleted
		quantity := req.Quantity
		row = &Transaction{
			ID:                uuid.New(),
			ProjectID:         req.ProjectID,
			Type:              TypeCarbonSale,
			Quantity:          &quantity,
			Amount:            req.Amount,
			BuyerInfo:         buyerInfo,
			Platform:          &platform,
			PricePerCredit:    decimal.NewNullDecimal(price),
			TransactionStatus: &status,
			CreatedAt:         now,
		}
		if err := tx.InsertTransaction(ctx, row); err != nil {
			return err
		}
		remaining = balance.Available - req.Quantity
		return nil
	})
	if err != nil {
		return nil, classify(err, "sell credits")
	}

	s.observer.TransactionRecorded(row)
	s.invalidateBalance(ctx, row.ProjectID)
	s.publish(Event{
		Type:          EventCreditsSold,
		ProjectID:     row.ProjectID,
		TransactionID: &row.ID,
		Quantity:      row.Quantity,
		Amount:        row.Amount,
		OccurredAt:    now,
	})

	return &SellCreditsResult{
		TransactionID:    row.ID,
		RemainingCredits: remaining,
		PricePerCredit:   price,
	}, nil
}

// VerifyCredits moves an issued batch from pending to verified.
func (s *Service) VerifyCredits(ctx context.Context, req VerifyCreditsRequest) (result *VerifyCreditsResult, err error) {
	start := time.Now()
	defer func() { s.track(opVerify, start, err) }()

	if req.CreditID == uuid.Nil {
		return nil, invalidArgument("credit_id is required")
	}
	body := strings.TrimSpace(req.VerificationBody)
	if body == "" {
		return nil, invalidArgument("verification_body is required")
	}

	credit, err := s.repo.GetTransaction(ctx, req.CreditID)
	if err != nil {
		return nil, classify(err, "load credit batch")
	}
	if credit == nil || credit.Type != TypeCarbonIssue {
		return nil, ErrCreditNotFound
	}

	current := VerificationPending
	if credit.VerificationStatus != nil {
		current = *credit.VerificationStatus
	}
	if !s.verifyFlow.CanTransition(string(current), string(VerificationVerified)) {
		return nil, ErrAlreadyVerified
	}

	now := s.now()
	updated, err := s.repo.MarkVerified(ctx, req.CreditID, body, strings.TrimSpace(req.VerificationDocument), now)
	if err != nil {
		return nil, classify(err, "verify credits")
	}
	if !updated {
		// Lost a race with another verifier.
		return nil, ErrAlreadyVerified
	}

	s.logger.Info("Credits verified",
		zap.String("credit_id", req.CreditID.String()),
		zap.String("verification_body", body))
	s.publish(Event{
		Type:          EventCreditsVerified,
		ProjectID:     credit.ProjectID,
		TransactionID: &credit.ID,
		Quantity:      credit.Quantity,
		Amount:        decimal.Zero,
		OccurredAt:    now,
	})

	return &VerifyCreditsResult{
		CreditID:           req.CreditID,
		VerificationStatus: VerificationVerified,
		VerifiedAt:         now,
	}, nil
}

// Balance returns the project's available credits, served from the balance cache
// when one is configured.
func (s *Service) Balance(ctx context.Context, projectID uuid.UUID) (balance *CreditBalance, err error) {
	start := time.Now()
	defer func() { s.track(opBalance, start, err) }()

	if projectID == uuid.Nil {
		return nil, invalidArgument("project_id is required")
	}

	generation, cacheable := s.balanceGeneration(ctx, projectID)
	if cacheable {
		if cached, ok := s.cachedBalance(ctx, projectID, generation); ok {
			return cached, nil
		}
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, classify(err, "load project")
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	balance, err = s.repo.CreditBalance(ctx, projectID)
	if err != nil {
		return nil, classify(err, "compute credit balance")
	}
	balance.ProjectID = projectID
	balance.Available = balance.Issued - balance.Sold
	balance.ComputedAt = s.now()

	if cacheable {
		s.storeBalance(ctx, balance, generation)
	}
	return balance, nil
}

// =====================================================
// Donations
// =====================================================

// Donate appends a donation row and, for campaign donations, bumps the campaign's
// cached total in the same transaction. The thank-you email is sent after commit.
func (s *Service) Donate(ctx context.Context, req DonateRequest) (result *DonationResult, err error) {
	start := time.Now()
	defer func() { s.track(opDonate, start, err) }()

	if req.ProjectID == uuid.Nil {
		return nil, invalidArgument("project_id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, invalidArgument("amount must be positive")
	}
	donorType := strings.ToLower(strings.TrimSpace(req.DonorType))
	if donorType == "" {
		donorType = DefaultDonorType
	}
	if !donorTypes[donorType] {
		return nil, invalidArgument("unsupported donor_type %q", req.DonorType)
	}
	email := strings.TrimSpace(req.DonorEmail)
	if email != "" {
		if verr := validate.Var(email, "email"); verr != nil {
			return nil, invalidArgument("donor_email is not a valid address")
		}
	}
	name := strings.TrimSpace(req.DonorName)
	if name == "" {
		name = DefaultDonorName
	}
	if req.CampaignID != nil && *req.CampaignID == uuid.Nil {
		req.CampaignID = nil
	}

	now := s.now()
	id := uuid.New()
	receipt := ReceiptNumber(id, now)
	var (
		row         *Transaction
		projectName string
	)

	err = s.repo.InTx(ctx, func(tx LedgerTx) error {
		project, err := tx.LockProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return ErrProjectNotFound
		}
		projectName = project.ProjectName

		if req.CampaignID != nil {
			campaign, err := tx.LockCampaign(ctx, *req.CampaignID)
			if err != nil {
				return err
			}
			if campaign == nil {
				return ErrCampaignNotFound
			}
			if campaign.ProjectID != req.ProjectID {
				return invalidArgument("campaign %s does not belong to project %s", campaign.ID, req.ProjectID)
			}
			if campaign.Status == CampaignClosed {
				return ErrCampaignClosed
			}
		}

		status := DonationStatusReceived
		row = &Transaction{
			ID:             id,
			ProjectID:      req.ProjectID,
			Type:           TypeDonation,
			Amount:         req.Amount,
			DonorName:      &name,
			DonorEmail:     optionalString(email),
			CampaignID:     req.CampaignID,
			IsRecurring:    req.IsRecurring,
			DonorType:      &donorType,
			DonationStatus: &status,
			ReceiptNumber:  &receipt,
			CreatedAt:      now,
		}
		if err := tx.InsertTransaction(ctx, row); err != nil {
			return err
		}
		if req.CampaignID != nil {
			return tx.AddCampaignAmount(ctx, *req.CampaignID, req.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "record donation")
	}

	s.observer.TransactionRecorded(row)
	s.publish(Event{
		Type:          EventDonationReceived,
		ProjectID:     row.ProjectID,
		TransactionID: &row.ID,
		CampaignID:    row.CampaignID,
		Amount:        row.Amount,
		OccurredAt:    now,
	})

	if email != "" && s.notifier != nil {
		notice := DonationNotice{
			DonationID:    row.ID,
			ProjectID:     row.ProjectID,
			ProjectName:   projectName,
			CampaignID:    row.CampaignID,
			DonorName:     name,
			DonorEmail:    email,
			Amount:        row.Amount,
			ReceiptNumber: receipt,
			IsRecurring:   row.IsRecurring,
			ReceivedAt:    now,
		}
		s.afterCommit("email", func(ctx context.Context) error {
			return s.notifier.SendThankYou(ctx, notice)
		})
	}

	return &DonationResult{DonationID: row.ID, ReceiptNumber: receipt}, nil
}

// ReceiptNumber derives the donor-facing receipt identifier from the donation id and
// the time it was recorded.
func ReceiptNumber(id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("DON-%s-%d", strings.ToUpper(id.String()[:8]), at.UnixMilli())
}

// GetDonation returns a donation row, for receipts.
func (s *Service) GetDonation(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, classify(err, "load donation")
	}
	if row == nil || row.Type != TypeDonation {
		return nil, ErrTransactionNotFound
	}
	return row, nil
}

// GetDonationNotice rebuilds the receipt view of a recorded donation.
func (s *Service) GetDonationNotice(ctx context.Context, id uuid.UUID) (*DonationNotice, error) {
	row, err := s.GetDonation(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := s.repo.GetProject(ctx, row.ProjectID)
	if err != nil {
		return nil, classify(err, "load project")
	}

	notice := &DonationNotice{
		DonationID:  row.ID,
		ProjectID:   row.ProjectID,
		CampaignID:  row.CampaignID,
		DonorName:   DefaultDonorName,
		Amount:      row.Amount,
		IsRecurring: row.IsRecurring,
		ReceivedAt:  row.CreatedAt,
	}
	if project != nil {
		notice.ProjectName = project.ProjectName
	}
	if row.DonorName != nil && *row.DonorName != "" {
		notice.DonorName = *row.DonorName
	}
	if row.DonorEmail != nil {
		notice.DonorEmail = *row.DonorEmail
	}
	if row.ReceiptNumber != nil {
		notice.ReceiptNumber = *row.ReceiptNumber
	} else {
		notice.ReceiptNumber = ReceiptNumber(row.ID, row.CreatedAt)
	}
	return notice, nil
}

// =====================================================
// Campaigns
// =====================================================

func (s *Service) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (campaign *Campaign, err error) {
	start := time.Now()
	defer func() { s.track(opCreateCampaign, start, err) }()

	if req.ProjectID == uuid.Nil {
		return nil, invalidArgument("project_id is required")
	}
	name := strings.TrimSpace(req.CampaignName)
	if name == "" {
		return nil, invalidArgument("campaign_name is required")
	}
	if !req.TargetAmount.IsPositive() {
		return nil, invalidArgument("target_amount must be positive")
	}
	tiers, err := optionalJSON(req.RewardTiers, "reward_tiers")
	if err != nil {
		return nil, err
	}

	project, err := s.repo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, classify(err, "load project")
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	now := s.now()
	if req.EndDate != nil && req.EndDate.Before(now) {
		return nil, invalidArgument("end_date must be in the future")
	}

	campaign = &Campaign{
		ID:            uuid.New(),
		ProjectID:     req.ProjectID,
		CampaignName:  name,
		Description:   optionalString(req.Description),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: decimal.Zero,
		EndDate:       req.EndDate,
		RewardTiers:   tiers,
		Status:        CampaignActive,
		CreatedAt:     now,
	}
	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, classify(err, "create campaign")
	}

	s.publish(Event{
		Type:       EventCampaignCreated,
		ProjectID:  campaign.ProjectID,
		CampaignID: &campaign.ID,
		Amount:     campaign.TargetAmount,
		OccurredAt: now,
	})
	return campaign, nil
}

// GetCampaign returns the campaign with totals aggregated from the donation log.
// A zero target reports 0% progress.
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (progress *CampaignProgress, err error) {
	start := time.Now()
	defer func() { s.track(opGetCampaign, start, err) }()

	if id == uuid.Nil {
		return nil, invalidArgument("campaign id is required")
	}

	progress, err = s.repo.GetCampaignProgress(ctx, id)
	if err != nil {
		return nil, classify(err, "load campaign")
	}
	if progress == nil {
		return nil, ErrCampaignNotFound
	}

	progress.ProgressPercentage = ProgressPercentage(progress.CurrentAmount, progress.TargetAmount)
	return progress, nil
}

// ListCampaigns returns active campaigns, newest first.
func (s *Service) ListCampaigns(ctx context.Context, projectID *uuid.UUID) (campaigns []Campaign, err error) {
	start := time.Now()
	defer func() { s.track(opListCampaigns, start, err) }()

	campaigns, err = s.repo.ListCampaigns(ctx, projectID)
	if err != nil {
		return nil, classify(err, "list campaigns")
	}
	return campaigns, nil
}

// RefreshCampaignTotals recomputes cached campaign totals that drifted from the log.
func (s *Service) RefreshCampaignTotals(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.StaleCampaigns(ctx, limit)
	if err != nil {
		return nil, classify(err, "find stale campaigns")
	}
	return ids, nil
}

// RecomputeCampaign rewrites one campaign's cached total from the donation log.
func (s *Service) RecomputeCampaign(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	amount, err := s.repo.RecomputeCampaignAmount(ctx, id)
	if err != nil {
		return decimal.Zero, classify(err, "recompute campaign")
	}
	return amount, nil
}

// =====================================================
// Reporting
// =====================================================

// GetProjectFunding returns the project's history, newest first, and a summary
// folded from that same row set.
func (s *Service) GetProjectFunding(ctx context.Context, projectID uuid.UUID) (funding *ProjectFunding, err error) {
	start := time.Now()
	defer func() { s.track(opProjectFunding, start, err) }()

	if projectID == uuid.Nil {
		return nil, invalidArgument("project_id is required")
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, classify(err, "load project")
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	txs, err := s.repo.ListTransactions(ctx, projectID)
	if err != nil {
		return nil, classify(err, "list transactions")
	}

	return &ProjectFunding{
		ProjectID:    projectID,
		ProjectName:  project.ProjectName,
		Transactions: toViews(txs),
		Summary:      Summarize(txs),
	}, nil
}

// GetMarketPricing aggregates sale prices of the last 30 days by UTC day.
func (s *Service) GetMarketPricing(ctx context.Context) (prices []DailyPrice, err error) {
	start := time.Now()
	defer func() { s.track(opMarketPricing, start, err) }()

	prices, err = s.repo.MarketPricing(ctx, s.now().Add(-marketPricingWindow))
	if err != nil {
		return nil, classify(err, "aggregate market pricing")
	}
	return prices, nil
}

// =====================================================
// Side effects
// =====================================================

func (s *Service) track(operation string, start time.Time, err error) {
	if err != nil {
		s.observer.OperationFailed(operation, err)
		return
	}
	s.observer.OperationCompleted(operation, time.Since(start))
}

func (s *Service) publish(event Event) {
	if s.publisher == nil {
		return
	}
	s.afterCommit("events", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, event)
	})
}

func (s *Service) afterCommit(name string, fn func(ctx context.Context) error) {
	if s.dispatcher != nil {
		if err := s.dispatcher.Submit(name, fn); err != nil {
			s.logger.Warn("Dropped post-commit job", zap.String("job", name), zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.observer.NotificationFailed(name, err)
	}
}

func balanceKey(projectID uuid.UUID) string {
	return "funding:balance:" + projectID.String()
}

func balanceGenerationKey(projectID uuid.UUID) string {
	return "funding:balance-gen:" + projectID.String()
}

// balanceEntry is tagged with the generation current when its fold started. Every
// committed issue or sale moves the generation, so an entry written by a read that
// raced a commit never matches again.
type balanceEntry struct {
	Generation string         `json:"generation"`
	Balance    *CreditBalance `json:"balance"`
}

// balanceGeneration must be read before the log fold. The generation key lives at
// least as long as any entry tagged before it moved.
func (s *Service) balanceGeneration(ctx context.Context, projectID uuid.UUID) (string, bool) {
	if s.balances == nil {
		return "", false
	}
	raw, _, err := s.balances.Get(ctx, balanceGenerationKey(projectID))
	if err != nil {
		s.logger.Warn("Balance cache read failed", zap.Error(err))
		return "", false
	}
	return string(raw), true
}

func (s *Service) cachedBalance(ctx context.Context, projectID uuid.UUID, generation string) (*CreditBalance, bool) {
	raw, ok, err := s.balances.Get(ctx, balanceKey(projectID))
	if err != nil {
		s.logger.Warn("Balance cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry balanceEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Balance == nil {
		return nil, false
	}
	if entry.Generation != generation {
		return nil, false
	}
	return entry.Balance, true
}

func (s *Service) storeBalance(ctx context.Context, balance *CreditBalance, generation string) {
	raw, err := json.Marshal(balanceEntry{Generation: generation, Balance: balance})
	if err != nil {
		return
	}
	if err := s.balances.Set(ctx, balanceKey(balance.ProjectID), raw, s.balanceTTL); err != nil {
		s.logger.Warn("Balance cache write failed", zap.Error(err))
	}
}

func (s *Service) invalidateBalance(ctx context.Context, projectID uuid.UUID) {
	if s.balances == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := s.balances.Set(ctx, balanceGenerationKey(projectID), []byte(uuid.NewString()), s.balanceTTL); err != nil {
		s.observer.NotificationFailed("balance_cache", err)
	}
	if err := s.balances.Delete(ctx, balanceKey(projectID)); err != nil {
		s.observer.NotificationFailed("balance_cache", err)
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func optionalJSON(raw datatypes.JSON, field string) (*datatypes.JSON, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, invalidArgument("%s must be valid JSON", field)
	}
	out := datatypes.JSON(trimmed)
	return &out, nil
}
