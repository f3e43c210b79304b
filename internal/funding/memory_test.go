package funding

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memoryRepository is a transactional in-memory Repository. InTx holds a single
// mutex for the duration of the callback, which gives the same serialization the
// project row lock gives in postgres, and staged inserts are discarded on error.
type memoryRepository struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	projects  map[uuid.UUID]ProjectRef
	completed map[uuid.UUID]int64
	rows      []Transaction
	campaigns map[uuid.UUID]Campaign
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		projects:  make(map[uuid.UUID]ProjectRef),
		completed: make(map[uuid.UUID]int64),
		campaigns: make(map[uuid.UUID]Campaign),
	}
}

func (r *memoryRepository) addProject(name string, area decimal.Decimal, completedTasks int64) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.projects[id] = ProjectRef{ID: id, ProjectName: name, AreaHectares: area}
	r.completed[id] = completedTasks
	return id
}

func (r *memoryRepository) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memoryLedgerTx{repo: r, campaignDelta: make(map[uuid.UUID]decimal.Decimal)}
	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, tx.staged...)
	for id, delta := range tx.campaignDelta {
		c := r.campaigns[id]
		c.CurrentAmount = c.CurrentAmount.Add(delta)
		r.campaigns[id] = c
	}
	return nil
}

func (r *memoryRepository) GetProject(_ context.Context, id uuid.UUID) (*ProjectRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryRepository) CreditBalance(_ context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balanceLocked(projectID, nil), nil
}

func (r *memoryRepository) balanceLocked(projectID uuid.UUID, extra []Transaction) *CreditBalance {
	b := &CreditBalance{ProjectID: projectID}
	for _, rows := range [][]Transaction{r.rows, extra} {
		for i := range rows {
			if rows[i].ProjectID != projectID || rows[i].Quantity == nil {
				continue
			}
			switch rows[i].Type {
			case TypeCarbonIssue:
				b.Issued += *rows[i].Quantity
			case TypeCarbonSale:
				b.Sold += *rows[i].Quantity
			}
		}
	}
	b.Available = b.Issued - b.Sold
	return b
}

func (r *memoryRepository) ListTransactions(_ context.Context, projectID uuid.UUID) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Transaction{}
	for _, row := range r.rows {
		if row.ProjectID == projectID {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) GetTransaction(_ context.Context, id uuid.UUID) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			row := r.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) MarkVerified(_ context.Context, id uuid.UUID, body, document string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		row := &r.rows[i]
		if row.ID != id || row.Type != TypeCarbonIssue {
			continue
		}
		if row.VerificationStatus != nil && *row.VerificationStatus != VerificationPending {
			return false, nil
		}
		status := VerificationVerified
		row.VerificationStatus = &status
		row.VerificationBody = &body
		row.VerificationDocument = optionalString(document)
		row.VerifiedAt = &at
		return true, nil
	}
	return false, nil
}

func (r *memoryRepository) CreateCampaign(_ context.Context, campaign *Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[campaign.ID] = *campaign
	return nil
}

func (r *memoryRepository) GetCampaignProgress(_ context.Context, id uuid.UUID) (*CampaignProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	progress := &CampaignProgress{Campaign: c, ProjectName: r.projects[c.ProjectID].ProjectName}
	progress.CurrentAmount = decimal.Zero
	for _, row := range r.rows {
		if row.Type == TypeDonation && row.CampaignID != nil && *row.CampaignID == id {
			progress.CurrentAmount = progress.CurrentAmount.Add(row.Amount)
			progress.DonorCount++
		}
	}
	return progress, nil
}

func (r *memoryRepository) ListCampaigns(_ context.Context, projectID *uuid.UUID) ([]Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Campaign{}
	for _, c := range r.campaigns {
		if c.Status != CampaignActive {
			continue
		}
		if projectID != nil && c.ProjectID != *projectID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) StaleCampaigns(_ context.Context, _ int) ([]uuid.UUID, error) {
	return nil, nil
}

func (r *memoryRepository) RecomputeCampaignAmount(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	p, err := r.GetCampaignProgress(ctx, id)
	if err != nil || p == nil {
		return decimal.Zero, err
	}
	return p.CurrentAmount, nil
}

func (r *memoryRepository) MarketPricing(_ context.Context, since time.Time) ([]DailyPrice, error) {
	return []DailyPrice{}, nil
}

type memoryLedgerTx struct {
	repo          *memoryRepository
	staged        []Transaction
	campaignDelta map[uuid.UUID]decimal.Decimal
}

func (t *memoryLedgerTx) LockProject(ctx context.Context, projectID uuid.UUID) (*ProjectRef, error) {
	return t.repo.GetProject(ctx, projectID)
}

func (t *memoryLedgerTx) CreditBalance(_ context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.balanceLocked(projectID, t.staged), nil
}

func (t *memoryLedgerTx) ProjectImpact(_ context.Context, projectID uuid.UUID) (*ProjectImpact, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	p, ok := t.repo.projects[projectID]
	if !ok {
		return nil, nil
	}
	return &ProjectImpact{TreesPlanted: t.repo.completed[projectID], AreaHectares: p.AreaHectares}, nil
}

func (t *memoryLedgerTx) InsertTransaction(_ context.Context, tx *Transaction) error {
	t.staged = append(t.staged, *tx)
	return nil
}

func (t *memoryLedgerTx) LockCampaign(_ context.Context, id uuid.UUID) (*Campaign, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	c, ok := t.repo.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memoryLedgerTx) AddCampaignAmount(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	t.campaignDelta[id] = t.campaignDelta[id].Add(amount)
	return nil
}
