package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"reforest-portal/portal-backend/pkg/database"
)

// Repository is the persistence contract of the ledger. Lookups return nil, nil
// when the row does not exist.
type Repository interface {
	// InTx runs fn in one database transaction; fn's error rolls it back.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	GetProject(ctx context.Context, id uuid.UUID) (*ProjectRef, error)
	CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error)
	ListTransactions(ctx context.Context, projectID uuid.UUID) ([]Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	MarkVerified(ctx context.Context, id uuid.UUID, body, document string, at time.Time) (bool, error)

	CreateCampaign(ctx context.Context, campaign *Campaign) error
	GetCampaignProgress(ctx context.Context, id uuid.UUID) (*CampaignProgress, error)
	ListCampaigns(ctx context.Context, projectID *uuid.UUID) ([]Campaign, error)
	StaleCampaigns(ctx context.Context, limit int) ([]uuid.UUID, error)
	RecomputeCampaignAmount(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)

	MarketPricing(ctx context.Context, since time.Time) ([]DailyPrice, error)
}

// LedgerTx is the transactional view used by write flows.
type LedgerTx interface {
	// LockProject takes the per-project row lock that serializes ledger writes.
	LockProject(ctx context.Context, projectID uuid.UUID) (*ProjectRef, error)
	CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error)
	ProjectImpact(ctx context.Context, projectID uuid.UUID) (*ProjectImpact, error)
	InsertTransaction(ctx context.Context, tx *Transaction) error
	LockCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error)
	AddCampaignAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

const transactionColumns = `
	id, project_id, type, quantity, amount, note,
	verification_status, credit_standard, vintage_year, verification_body,
	verification_document, verified_at,
	donor_name, donor_email, campaign_id, is_recurring, donor_type, donation_status, receipt_number,
	buyer_info, platform, price_per_credit, transaction_status,
	created_at`

const campaignColumns = `
	c.id, c.project_id, c.campaign_name, c.description, c.target_amount, c.current_amount,
	c.end_date, c.reward_tiers, c.status, c.created_at`

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&postgresLedgerTx{tx: tx})
	})
}

func (r *postgresRepository) GetProject(ctx context.Context, id uuid.UUID) (*ProjectRef, error) {
	var project ProjectRef
	err := r.db.GetContext(ctx, &project,
		"SELECT id, project_name, area_hectares FROM projects WHERE id = $1", id)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (r *postgresRepository) CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	return creditBalance(ctx, r.db, projectID)
}

func (r *postgresRepository) ListTransactions(ctx context.Context, projectID uuid.UUID) ([]Transaction, error) {
	txs := []Transaction{}
	query := "SELECT " + transactionColumns + `
		FROM project_funding
		WHERE project_id = $1
		ORDER BY created_at DESC, id`
	if err := r.db.SelectContext(ctx, &txs, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (r *postgresRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var tx Transaction
	err := r.db.GetContext(ctx, &tx,
		"SELECT "+transactionColumns+" FROM project_funding WHERE id = $1", id)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *postgresRepository) MarkVerified(ctx context.Context, id uuid.UUID, body, document string, at time.Time) (bool, error) {
	query := `
		UPDATE project_funding SET
			verification_status = 'verified',
			verification_body = $2,
			verification_document = NULLIF($3, ''),
			verified_at = $4
		WHERE id = $1 AND type = 'carbon_issue' AND verification_status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, body, document, at)
	if err != nil {
		return false, fmt.Errorf("failed to verify credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to verify credits: %w", err)
	}
	return n == 1, nil
}

func (r *postgresRepository) CreateCampaign(ctx context.Context, campaign *Campaign) error {
	query := `
		INSERT INTO funding_campaigns (
			id, project_id, campaign_name, description, target_amount, current_amount,
			end_date, reward_tiers, status, created_at
		) VALUES (
			:id, :project_id, :campaign_name, :description, :target_amount, :current_amount,
			:end_date, :reward_tiers, :status, :created_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, campaign); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetCampaignProgress(ctx context.Context, id uuid.UUID) (*CampaignProgress, error) {
	query := `
		SELECT
			c.id, c.project_id, c.campaign_name, c.description, c.target_amount,
			COALESCE(d.total, 0) AS current_amount,
			c.end_date, c.reward_tiers, c.status, c.created_at,
			p.project_name,
			COALESCE(d.donors, 0) AS donor_count
		FROM funding_campaigns c
		JOIN projects p ON p.id = c.project_id
		LEFT JOIN (
			SELECT campaign_id, SUM(amount) AS total, COUNT(*) AS donors
			FROM project_funding
			WHERE type = 'donation' AND campaign_id = $1
			GROUP BY campaign_id
		) d ON d.campaign_id = c.id
		WHERE c.id = $1`

	var progress CampaignProgress
	err := r.db.GetContext(ctx, &progress, query, id)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &progress, nil
}

func (r *postgresRepository) ListCampaigns(ctx context.Context, projectID *uuid.UUID) ([]Campaign, error) {
	campaigns := []Campaign{}
	query := "SELECT " + campaignColumns + " FROM funding_campaigns c WHERE c.status = 'active'"
	var args []interface{}

	if projectID != nil {
		query += " AND c.project_id = $1"
		args = append(args, *projectID)
	}
	query += " ORDER BY c.created_at DESC"

	if err := r.db.SelectContext(ctx, &campaigns, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *postgresRepository) StaleCampaigns(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT c.id
		FROM funding_campaigns c
		LEFT JOIN (
			SELECT campaign_id, SUM(amount) AS total
			FROM project_funding
			WHERE type = 'donation' AND campaign_id IS NOT NULL
			GROUP BY campaign_id
		) d ON d.campaign_id = c.id
		WHERE c.current_amount <> COALESCE(d.total, 0)
		ORDER BY c.created_at
		LIMIT $1`

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query stale campaigns: %w", err)
	}
	return ids, nil
}

// RecomputeCampaignAmount holds the campaign row lock that Donate takes, so a
// donation cannot commit between the sum and the write.
func (r *postgresRepository) RecomputeCampaignAmount(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	query := `
		UPDATE funding_campaigns c SET current_amount = COALESCE((
			SELECT SUM(f.amount) FROM project_funding f
			WHERE f.type = 'donation' AND f.campaign_id = c.id
		), 0)
		WHERE c.id = $1
		RETURNING c.current_amount`

	var amount decimal.Decimal
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		err := tx.GetContext(ctx, &locked, "SELECT id FROM funding_campaigns WHERE id = $1 FOR UPDATE", id)
		if database.IsNoRows(err) {
			return ErrCampaignNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock campaign: %w", err)
		}
		if err := tx.GetContext(ctx, &amount, query, id); err != nil {
			return fmt.Errorf("failed to recompute campaign amount: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (r *postgresRepository) MarketPricing(ctx context.Context, since time.Time) ([]DailyPrice, error) {
	query := `
		SELECT
			to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
			ROUND(AVG(price_per_credit), 4) AS avg_price,
			MIN(price_per_credit) AS min_price,
			MAX(price_per_credit) AS max_price,
			COUNT(*) AS transaction_count
		FROM project_funding
		WHERE type = 'carbon_sale'
			AND created_at >= $1
			AND price_per_credit > 0
		GROUP BY 1
		ORDER BY 1 DESC`

	prices := []DailyPrice{}
	if err := r.db.SelectContext(ctx, &prices, query, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate market pricing: %w", err)
	}
	return prices, nil
}

type postgresLedgerTx struct {
	tx *sqlx.Tx
}

func (t *postgresLedgerTx) LockProject(ctx context.Context, projectID uuid.UUID) (*ProjectRef, error) {
	var project ProjectRef
	err := t.tx.GetContext(ctx, &project,
		"SELECT id, project_name, area_hectares FROM projects WHERE id = $1 FOR UPDATE", projectID)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock project: %w", err)
	}
	return &project, nil
}

func (t *postgresLedgerTx) CreditBalance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error) {
	return creditBalance(ctx, t.tx, projectID)
}

func (t *postgresLedgerTx) ProjectImpact(ctx context.Context, projectID uuid.UUID) (*ProjectImpact, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id AND t.status = 'Completed') AS trees_planted,
			p.area_hectares
		FROM projects p
		WHERE p.id = $1`

	var impact ProjectImpact
	err := t.tx.GetContext(ctx, &impact, query, projectID)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project impact: %w", err)
	}
	return &impact, nil
}

func (t *postgresLedgerTx) InsertTransaction(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO project_funding (` + transactionColumns + `
		) VALUES (
			:id, :project_id, :type, :quantity, :amount, :note,
			:verification_status, :credit_standard, :vintage_year, :verification_body,
			:verification_document, :verified_at,
			:donor_name, :donor_email, :campaign_id, :is_recurring, :donor_type, :donation_status, :receipt_number,
			:buyer_info, :platform, :price_per_credit, :transaction_status,
			:created_at
		)`
	if _, err := t.tx.NamedExecContext(ctx, query, tx); err != nil {
		return fmt.Errorf("failed to insert %s transaction: %w", tx.Type, err)
	}
	return nil
}

func (t *postgresLedgerTx) LockCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	var campaign Campaign
	err := t.tx.GetContext(ctx, &campaign,
		"SELECT "+campaignColumns+" FROM funding_campaigns c WHERE c.id = $1 FOR UPDATE", id)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}
	return &campaign, nil
}

func (t *postgresLedgerTx) AddCampaignAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE funding_campaigns SET current_amount = current_amount + $2 WHERE id = $1", id, amount)
	if err != nil {
		return fmt.Errorf("failed to update campaign amount: %w", err)
	}
	return nil
}

func creditBalance(ctx context.Context, q sqlx.QueryerContext, projectID uuid.UUID) (*CreditBalance, error) {
	query := `
		SELECT
			$1::uuid AS project_id,
			COALESCE(SUM(quantity) FILTER (WHERE type = 'carbon_issue'), 0)::bigint AS issued,
			COALESCE(SUM(quantity) FILTER (WHERE type = 'carbon_sale'), 0)::bigint AS sold
		FROM project_funding
		WHERE project_id = $1`

	var balance CreditBalance
	if err := sqlx.GetContext(ctx, q, &balance, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to compute credit balance: %w", err)
	}
	balance.Available = balance.Issued - balance.Sold
	return &balance, nil
}
