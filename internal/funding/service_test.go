package funding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/cache"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

// InTx runs fn against the LedgerTx configured as the first return value, or
// returns the configured error without calling fn.
func (m *MockRepository) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(LedgerTx); ok {
		return fn(tx)
	}
	return args.Error(1)
}

func (m *MockRepository) GetProject(ctx context.Context, id uuid.UUID) (*ProjectRef, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProjectRef), args.Error(1)
}

func (m *MockRepository) CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CreditBalance), args.Error(1)
}

func (m *MockRepository) ListTransactions(ctx context.Context, projectID uuid.UUID) ([]Transaction, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]Transaction), args.Error(1)
}

func (m *MockRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *MockRepository) MarkVerified(ctx context.Context, id uuid.UUID, body, document string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, body, document, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateCampaign(ctx context.Context, campaign *Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *MockRepository) GetCampaignProgress(ctx context.Context, id uuid.UUID) (*CampaignProgress, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CampaignProgress), args.Error(1)
}

func (m *MockRepository) ListCampaigns(ctx context.Context, projectID *uuid.UUID) ([]Campaign, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]Campaign), args.Error(1)
}

func (m *MockRepository) StaleCampaigns(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockRepository) RecomputeCampaignAmount(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRepository) MarketPricing(ctx context.Context, since time.Time) ([]DailyPrice, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]DailyPrice), args.Error(1)
}

// MockLedgerTx is a mock implementation of the LedgerTx interface
type MockLedgerTx struct {
	mock.Mock
}

func (m *MockLedgerTx) LockProject(ctx context.Context, projectID uuid.UUID) (*ProjectRef, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProjectRef), args.Error(1)
}

func (m *MockLedgerTx) CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CreditBalance), args.Error(1)
}

func (m *MockLedgerTx) ProjectImpact(ctx context.Context, projectID uuid.UUID) (*ProjectImpact, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProjectImpact), args.Error(1)
}

func (m *MockLedgerTx) InsertTransaction(ctx context.Context, tx *Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockLedgerTx) LockCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Campaign), args.Error(1)
}

func (m *MockLedgerTx) AddCampaignAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []DonationNotice
	err     error
}

func (n *recordingNotifier) SendThankYou(_ context.Context, notice DonationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingObserver struct {
	nopObserver
	mu            sync.Mutex
	failures      map[string]apperrors.Kind
	notifications []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failures: make(map[string]apperrors.Kind)}
}

func (o *recordingObserver) OperationFailed(operation string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[operation] = apperrors.KindOf(err)
}

func (o *recordingObserver) NotificationFailed(channel string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, channel)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(repo Repository, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(repo, zap.NewNop(), opts...)
}

func int64Ptr(v int64) *int64 { return &v }

func TestSellCreditsAgainstIssuedBalance(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Mangrove Belt", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	issued, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(100)})
	require.NoError(t, err)
	assert.Equal(t, int64(100), issued.Quantity)
	assert.Equal(t, VerificationPending, issued.VerificationStatus)

	sold, err := service.SellCredits(ctx, SellCreditsRequest{
		ProjectID: projectID,
		Quantity:  40,
		Amount:    decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), sold.RemainingCredits)
	assert.True(t, decimal.NewFromInt(25).Equal(sold.PricePerCredit))

	_, err = service.SellCredits(ctx, SellCreditsRequest{
		ProjectID: projectID,
		Quantity:  61,
		Amount:    decimal.NewFromInt(1525),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientCredits, apperrors.KindOf(err))

	details, ok := AsInsufficientCredits(err)
	require.True(t, ok)
	assert.Equal(t, int64(60), details.Available)
	assert.Equal(t, int64(61), details.Requested)

	balance, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance.Available)
}

func TestIssueCreditsAutoCalculate(t *testing.T) {
	tests := []struct {
		name      string
		completed int64
		area      string
		expected  int64
	}{
		{name: "no impact yet", completed: 0, area: "0", expected: 0},
		{name: "trees only", completed: 100, area: "0", expected: 5},
		{name: "area dominates", completed: 10, area: "2.5", expected: 9},
		{name: "trees dominate", completed: 400, area: "1", expected: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository()
			projectID := repo.addProject("Ridge", decimal.RequireFromString(tt.area), tt.completed)
			service := newTestService(repo)

			result, err := service.IssueCredits(context.Background(), IssueCreditsRequest{
				ProjectID:     projectID,
				AutoCalculate: true,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Quantity)
		})
	}
}

func TestIssueCreditsExplicitQuantityWinsOverAutoCalculate(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.NewFromInt(100), 1000)
	service := newTestService(repo)

	result, err := service.IssueCredits(context.Background(), IssueCreditsRequest{
		ProjectID:          projectID,
		Quantity:           int64Ptr(7),
		AutoCalculate:      true,
		VerificationStatus: VerificationVerified,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Quantity)

	row, err := repo.GetTransaction(context.Background(), result.CreditID)
	require.NoError(t, err)
	require.NotNil(t, row.VerifiedAt)
	assert.Equal(t, DefaultCreditStandard, *row.CreditStandard)
	assert.Equal(t, 2026, *row.VintageYear)
}

func TestIssueCreditsValidation(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	_, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID})
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	_, err = service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(-1)})
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	_, err = service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(0)})
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	rows, err := repo.ListTransactions(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// A zero quantity alongside auto_calculate defers to the calculation.
	auto, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(0), AutoCalculate: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), auto.Quantity)

	_, err = service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(1), VerificationStatus: "approved"})
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	_, err = service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: uuid.New(), Quantity: int64Ptr(1)})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestSellCreditsValidation(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()
	negative := decimal.NewFromInt(-2)

	cases := map[string]SellCreditsRequest{
		"zero quantity":  {ProjectID: projectID, Quantity: 0, Amount: decimal.NewFromInt(10)},
		"zero amount":    {ProjectID: projectID, Quantity: 1, Amount: decimal.Zero},
		"negative price": {ProjectID: projectID, Quantity: 1, Amount: decimal.NewFromInt(10), PricePerCredit: &negative},
		"bad buyer info": {ProjectID: projectID, Quantity: 1, Amount: decimal.NewFromInt(10), BuyerInfo: datatypes.JSON(`{"name":`)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.SellCredits(ctx, req)
			assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
		})
	}

	_, err := service.SellCredits(ctx, SellCreditsRequest{ProjectID: uuid.New(), Quantity: 1, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestSellCreditsRecordsSaleDefaults(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	_, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(10)})
	require.NoError(t, err)

	result, err := service.SellCredits(ctx, SellCreditsRequest{
		ProjectID: projectID,
		Quantity:  3,
		Amount:    decimal.NewFromInt(10),
		BuyerInfo: datatypes.JSON(`{"company":"Acme"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "3.3333", result.PricePerCredit.String())

	row, err := repo.GetTransaction(ctx, result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatform, *row.Platform)
	assert.Equal(t, TransactionStatusCompleted, *row.TransactionStatus)
	assert.JSONEq(t, `{"company":"Acme"}`, string(*row.BuyerInfo))
}

func TestConcurrentSellsNeverOversell(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	_, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(100)})
	require.NoError(t, err)

	const sellers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.SellCredits(ctx, SellCreditsRequest{
				ProjectID: projectID,
				Quantity:  60,
				Amount:    decimal.NewFromInt(600),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperrors.HasKind(err, apperrors.KindInsufficientCredits) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, sellers-1, rejected)

	balance, err := repo.CreditBalance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance.Available)
}

func TestGetProjectFundingSummaryMatchesHistory(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	_, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(50)})
	require.NoError(t, err)
	_, err = service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(30)})
	require.NoError(t, err)
	_, err = service.SellCredits(ctx, SellCreditsRequest{ProjectID: projectID, Quantity: 20, Amount: decimal.RequireFromString("300.50")})
	require.NoError(t, err)
	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(25)})
	require.NoError(t, err)
	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.RequireFromString("12.75")})
	require.NoError(t, err)

	funding, err := service.GetProjectFunding(ctx, projectID)
	require.NoError(t, err)

	summary := funding.Summary
	assert.Equal(t, "Ridge", funding.ProjectName)
	assert.Len(t, funding.Transactions, 5)
	assert.Equal(t, int64(80), summary.TotalCreditsIssued)
	assert.Equal(t, int64(20), summary.TotalCreditsSold)
	assert.Equal(t, summary.TotalCreditsIssued-summary.TotalCreditsSold, summary.AvailableCredits)
	assert.Equal(t, "300.5", summary.TotalRevenue.String())
	assert.Equal(t, "37.75", summary.TotalDonations.String())
	assert.Equal(t, int64(2), summary.DonorCount)

	for _, view := range funding.Transactions {
		assert.Equal(t, view.Type.Display(), view.TypeDisplay)
	}

	_, err = service.GetProjectFunding(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestVerifyCredits(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	publisher := &recordingPublisher{}
	service := newTestService(repo, WithEventPublisher(publisher))
	ctx := context.Background()

	_, err := service.VerifyCredits(ctx, VerifyCreditsRequest{CreditID: uuid.New(), VerificationBody: "Verra"})
	assert.ErrorIs(t, err, ErrCreditNotFound)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	issued, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(10)})
	require.NoError(t, err)

	_, err = service.VerifyCredits(ctx, VerifyCreditsRequest{CreditID: issued.CreditID})
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	verified, err := service.VerifyCredits(ctx, VerifyCreditsRequest{
		CreditID:             issued.CreditID,
		VerificationBody:     "Verra",
		VerificationDocument: "https://registry.example/doc/1",
	})
	require.NoError(t, err)
	assert.Equal(t, VerificationVerified, verified.VerificationStatus)
	assert.Equal(t, fixedNow, verified.VerifiedAt)

	_, err = service.VerifyCredits(ctx, VerifyCreditsRequest{CreditID: issued.CreditID, VerificationBody: "Verra"})
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	sale, err := service.SellCredits(ctx, SellCreditsRequest{ProjectID: projectID, Quantity: 1, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = service.VerifyCredits(ctx, VerifyCreditsRequest{CreditID: sale.TransactionID, VerificationBody: "Verra"})
	assert.ErrorIs(t, err, ErrCreditNotFound)

	assert.Equal(t, []EventType{EventCreditsIssued, EventCreditsVerified, EventCreditsSold}, publisher.types())
}

func TestVerifyCreditsLosesRace(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo)
	ctx := context.Background()
	pending := VerificationPending
	credit := &Transaction{ID: uuid.New(), ProjectID: uuid.New(), Type: TypeCarbonIssue, VerificationStatus: &pending}

	mockRepo.On("GetTransaction", ctx, credit.ID).Return(credit, nil)
	mockRepo.On("MarkVerified", ctx, credit.ID, "Gold Standard", "", fixedNow).Return(false, nil)

	_, err := service.VerifyCredits(ctx, VerifyCreditsRequest{CreditID: credit.ID, VerificationBody: " Gold Standard "})
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	mockRepo.AssertExpectations(t)
}

func TestDonate(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	notifier := &recordingNotifier{}
	service := newTestService(repo, WithDonorNotifier(notifier))
	ctx := context.Background()

	result, err := service.Donate(ctx, DonateRequest{
		ProjectID:  projectID,
		Amount:     decimal.NewFromInt(50),
		DonorEmail: "ada@example.org",
		DonorType:  "Corporate",
	})
	require.NoError(t, err)
	assert.Equal(t, ReceiptNumber(result.DonationID, fixedNow), result.ReceiptNumber)
	assert.Regexp(t, `^DON-[0-9A-F]{8}-\d+$`, result.ReceiptNumber)

	row, err := service.GetDonation(ctx, result.DonationID)
	require.NoError(t, err)
	assert.Equal(t, DefaultDonorName, *row.DonorName)
	assert.Equal(t, "corporate", *row.DonorType)
	assert.Equal(t, DonationStatusReceived, *row.DonationStatus)

	notice, err := service.GetDonationNotice(ctx, result.DonationID)
	require.NoError(t, err)
	assert.Equal(t, "Ridge", notice.ProjectName)
	assert.Equal(t, result.ReceiptNumber, notice.ReceiptNumber)
	assert.True(t, notice.Amount.Equal(decimal.NewFromInt(50)))

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "ada@example.org", notifier.notices[0].DonorEmail)
	assert.Equal(t, "Ridge", notifier.notices[0].ProjectName)
	assert.Equal(t, result.ReceiptNumber, notifier.notices[0].ReceiptNumber)

	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Len(t, notifier.notices, 1, "anonymous donations get no email")
}

func TestDonateValidation(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	cases := map[string]DonateRequest{
		"zero amount":  {ProjectID: projectID, Amount: decimal.Zero},
		"bad email":    {ProjectID: projectID, Amount: decimal.NewFromInt(1), DonorEmail: "not-an-email"},
		"unknown type": {ProjectID: projectID, Amount: decimal.NewFromInt(1), DonorType: "robot"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.Donate(ctx, req)
			assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
		})
	}

	_, err := service.GetDonation(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestDonateToCampaign(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	otherProject := repo.addProject("Delta", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	campaign, err := service.CreateCampaign(ctx, CreateCampaignRequest{
		ProjectID:    projectID,
		CampaignName: "Spring Planting",
		TargetAmount: decimal.NewFromInt(200),
		RewardTiers:  datatypes.JSON(`[{"amount":50,"reward":"certificate"}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, CampaignActive, campaign.Status)

	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(50), CampaignID: &campaign.ID})
	require.NoError(t, err)
	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(25), CampaignID: &campaign.ID})
	require.NoError(t, err)

	progress, err := service.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, "75", progress.CurrentAmount.String())
	assert.Equal(t, int64(2), progress.DonorCount)
	assert.Equal(t, "37.5", progress.ProgressPercentage.String())
	assert.Equal(t, "75", repo.campaigns[campaign.ID].CurrentAmount.String())

	_, err = service.Donate(ctx, DonateRequest{ProjectID: otherProject, Amount: decimal.NewFromInt(5), CampaignID: &campaign.ID})
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	missing := uuid.New()
	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(5), CampaignID: &missing})
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	closed := repo.campaigns[campaign.ID]
	closed.Status = CampaignClosed
	repo.campaigns[campaign.ID] = closed
	_, err = service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(5), CampaignID: &campaign.ID})
	assert.ErrorIs(t, err, ErrCampaignClosed)

	funding, err := service.GetProjectFunding(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, funding.Transactions, 2, "rejected donations leave no rows")
}

func TestCreateCampaignValidation(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()
	past := fixedNow.Add(-time.Hour)

	cases := map[string]CreateCampaignRequest{
		"missing name": {ProjectID: projectID, TargetAmount: decimal.NewFromInt(1)},
		"zero target":  {ProjectID: projectID, CampaignName: "x", TargetAmount: decimal.Zero},
		"bad tiers":    {ProjectID: projectID, CampaignName: "x", TargetAmount: decimal.NewFromInt(1), RewardTiers: datatypes.JSON(`[`)},
		"past end":     {ProjectID: projectID, CampaignName: "x", TargetAmount: decimal.NewFromInt(1), EndDate: &past},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.CreateCampaign(ctx, req)
			assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
		})
	}

	_, err := service.CreateCampaign(ctx, CreateCampaignRequest{ProjectID: uuid.New(), CampaignName: "x", TargetAmount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGetCampaignZeroTargetReportsZeroProgress(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo)
	ctx := context.Background()
	id := uuid.New()

	mockRepo.On("GetCampaignProgress", ctx, id).Return(&CampaignProgress{
		Campaign: Campaign{ID: id, TargetAmount: decimal.Zero, CurrentAmount: decimal.NewFromInt(40)},
	}, nil)

	progress, err := service.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.True(t, progress.ProgressPercentage.IsZero())

	missing := uuid.New()
	mockRepo.On("GetCampaignProgress", ctx, missing).Return(nil, nil)
	_, err = service.GetCampaign(ctx, missing)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestListCampaignsFiltersByProject(t *testing.T) {
	repo := newMemoryRepository()
	first := repo.addProject("Ridge", decimal.Zero, 0)
	second := repo.addProject("Delta", decimal.Zero, 0)
	service := newTestService(repo)
	ctx := context.Background()

	for _, p := range []uuid.UUID{first, first, second} {
		_, err := service.CreateCampaign(ctx, CreateCampaignRequest{ProjectID: p, CampaignName: "c", TargetAmount: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}

	all, err := service.ListCampaigns(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := service.ListCampaigns(ctx, &first)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestSellCreditsPersistenceFailureRollsBack(t *testing.T) {
	mockRepo := new(MockRepository)
	mockTx := new(MockLedgerTx)
	observer := newRecordingObserver()
	service := newTestService(mockRepo, WithObserver(observer))
	ctx := context.Background()
	projectID := uuid.New()

	mockRepo.On("InTx", ctx).Return(mockTx, nil)
	mockTx.On("LockProject", ctx, projectID).Return(&ProjectRef{ID: projectID}, nil)
	mockTx.On("CreditBalance", ctx, projectID).Return(nil, errors.New("connection reset by peer"))

	_, err := service.SellCredits(ctx, SellCreditsRequest{ProjectID: projectID, Quantity: 1, Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPersistence, apperrors.KindOf(err))
	assert.Equal(t, apperrors.KindPersistence, observer.failures[opSell])

	mockTx.AssertNotCalled(t, "InsertTransaction", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestDonateDuplicateReceiptIsConflict(t *testing.T) {
	mockRepo := new(MockRepository)
	mockTx := new(MockLedgerTx)
	observer := newRecordingObserver()
	service := newTestService(mockRepo, WithObserver(observer))
	ctx := context.Background()
	projectID := uuid.New()

	mockRepo.On("InTx", ctx).Return(mockTx, nil)
	mockTx.On("LockProject", ctx, projectID).Return(&ProjectRef{ID: projectID, ProjectName: "Ridge"}, nil)
	mockTx.On("InsertTransaction", ctx, mock.AnythingOfType("*funding.Transaction")).
		Return(&pq.Error{Code: "23505", Constraint: "transactions_receipt_number_key"})

	_, err := service.Donate(ctx, DonateRequest{ProjectID: projectID, Amount: decimal.NewFromInt(50)})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.Equal(t, apperrors.KindConflict, observer.failures[opDonate])

	mockRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestIssueCreditsInsertsWithinLockedTransaction(t *testing.T) {
	mockRepo := new(MockRepository)
	mockTx := new(MockLedgerTx)
	service := newTestService(mockRepo)
	ctx := context.Background()
	projectID := uuid.New()

	mockRepo.On("InTx", ctx).Return(mockTx, nil)
	mockTx.On("LockProject", ctx, projectID).Return(&ProjectRef{ID: projectID}, nil)
	mockTx.On("ProjectImpact", ctx, projectID).Return(&ProjectImpact{TreesPlanted: 100, AreaHectares: decimal.Zero}, nil)
	mockTx.On("InsertTransaction", ctx, mock.MatchedBy(func(tx *Transaction) bool {
		return tx.Type == TypeCarbonIssue && tx.Quantity != nil && *tx.Quantity == 5
	})).Return(nil)

	result, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, AutoCalculate: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Quantity)

	mockRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
}

func TestBalanceCacheInvalidatedOnWrite(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	store := cache.NewMemoryStore(time.Minute)
	defer store.Stop()
	service := newTestService(repo, WithBalanceCache(store, time.Minute))
	ctx := context.Background()

	_, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(10)})
	require.NoError(t, err)

	first, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.Available)
	assert.Equal(t, 2, store.Size())
	_, misses := store.Stats()

	cached, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cached.Available)
	_, missesAfter := store.Stats()
	assert.Equal(t, misses, missesAfter)

	_, err = service.SellCredits(ctx, SellCreditsRequest{ProjectID: projectID, Quantity: 4, Amount: decimal.NewFromInt(8)})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Size())

	fresh, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), fresh.Available)

	_, err = service.Balance(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

// saleDuringFoldRepository commits a sale after the first balance fold returns and
// before Balance gets to write the cache.
type saleDuringFoldRepository struct {
	*memoryRepository
	once   sync.Once
	onFold func()
}

func (r *saleDuringFoldRepository) CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	balance, err := r.memoryRepository.CreditBalance(ctx, projectID)
	if err == nil && r.onFold != nil {
		r.once.Do(r.onFold)
	}
	return balance, err
}

func TestBalanceCacheIgnoresFoldThatRacedASale(t *testing.T) {
	inner := newMemoryRepository()
	projectID := inner.addProject("Ridge", decimal.Zero, 0)
	repo := &saleDuringFoldRepository{memoryRepository: inner}
	store := cache.NewMemoryStore(time.Minute)
	defer store.Stop()
	service := newTestService(repo, WithBalanceCache(store, time.Minute))
	ctx := context.Background()

	_, err := service.IssueCredits(ctx, IssueCreditsRequest{ProjectID: projectID, Quantity: int64Ptr(100)})
	require.NoError(t, err)

	repo.onFold = func() {
		_, err := service.SellCredits(ctx, SellCreditsRequest{ProjectID: projectID, Quantity: 40, Amount: decimal.NewFromInt(400)})
		require.NoError(t, err)
	}

	raced, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), raced.Available)

	after, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), after.Available)

	again, err := service.Balance(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), again.Available)
}

func TestNotifierFailureDoesNotFailDonation(t *testing.T) {
	repo := newMemoryRepository()
	projectID := repo.addProject("Ridge", decimal.Zero, 0)
	observer := newRecordingObserver()
	notifier := &recordingNotifier{err: errors.New("ses throttled")}
	dispatcher := NewDispatcher(1, 4, time.Second, observer, zap.NewNop())
	service := newTestService(repo,
		WithObserver(observer),
		WithDonorNotifier(notifier),
		WithDispatcher(dispatcher))

	_, err := service.Donate(context.Background(), DonateRequest{
		ProjectID:  projectID,
		Amount:     decimal.NewFromInt(10),
		DonorEmail: "grace@example.org",
	})
	require.NoError(t, err)

	dispatcher.Close()
	assert.Equal(t, []string{"email"}, observer.notifications)
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	dispatcher := NewDispatcher(1, 1, 0, nil, nil)
	dispatcher.Close()
	dispatcher.Close()

	err := dispatcher.Submit("events", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	observer := newRecordingObserver()
	dispatcher := NewDispatcher(1, 2, time.Second, observer, zap.NewNop())

	require.NoError(t, dispatcher.Submit("websocket", func(context.Context) error { panic("boom") }))
	dispatcher.Close()

	assert.Equal(t, []string{"websocket"}, observer.notifications)
}

func TestRefreshCampaignTotals(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo)
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mockRepo.On("StaleCampaigns", ctx, 50).Return(ids, nil)
	mockRepo.On("RecomputeCampaignAmount", ctx, ids[0]).Return(decimal.NewFromInt(75), nil)

	stale, err := service.RefreshCampaignTotals(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, ids, stale)

	amount, err := service.RecomputeCampaign(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "75", amount.String())
}

func TestGetMarketPricingUsesThirtyDayWindow(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo)
	ctx := context.Background()
	prices := []DailyPrice{{Date: "2026-03-13", AveragePrice: decimal.RequireFromString("12.5"), TransactionCount: 2}}

	mockRepo.On("MarketPricing", ctx, fixedNow.Add(-30*24*time.Hour)).Return(prices, nil)

	got, err := service.GetMarketPricing(ctx)
	require.NoError(t, err)
	assert.Equal(t, prices, got)
	mockRepo.AssertExpectations(t)
}
