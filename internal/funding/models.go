package funding

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TypeCarbonIssue TransactionType = "carbon_issue"
	TypeCarbonSale  TransactionType = "carbon_sale"
	TypeDonation    TransactionType = "donation"
)

// Display returns the label shown in funding histories.
func (t TransactionType) Display() string {
	switch t {
	case TypeCarbonIssue:
		return "Credits Issued"
	case TypeCarbonSale:
		return "Credits Sold"
	case TypeDonation:
		return "Donation Received"
	default:
		return string(t)
	}
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

func (s VerificationStatus) Valid() bool {
	return s == VerificationPending || s == VerificationVerified
}

type CampaignStatus string

const (
	CampaignActive CampaignStatus = "active"
	CampaignClosed CampaignStatus = "closed"
)

const (
	DefaultCreditStandard      = "VCS"
	DefaultPlatform            = "direct"
	DefaultDonorName           = "Anonymous"
	DefaultDonorType           = "individual"
	DonationStatusReceived     = "received"
	TransactionStatusCompleted = "completed"
)

var donorTypes = map[string]bool{
	"individual": true,
	"corporate":  true,
	"foundation": true,
	"government": true,
}

// Transaction is one immutable row of the project_funding log.
type Transaction struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	ProjectID uuid.UUID       `json:"project_id" db:"project_id"`
	Type      TransactionType `json:"type" db:"type"`
	Quantity  *int64          `json:"quantity" db:"quantity"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Note      *string         `json:"note,omitempty" db:"note"`

	VerificationStatus   *VerificationStatus `json:"verification_status,omitempty" db:"verification_status"`
	CreditStandard       *string             `json:"credit_standard,omitempty" db:"credit_standard"`
	VintageYear          *int                `json:"vintage_year,omitempty" db:"vintage_year"`
	VerificationBody     *string             `json:"verification_body,omitempty" db:"verification_body"`
	VerificationDocument *string             `json:"verification_document,omitempty" db:"verification_document"`
	VerifiedAt           *time.Time          `json:"verified_at,omitempty" db:"verified_at"`

	DonorName      *string    `json:"donor_name,omitempty" db:"donor_name"`
	DonorEmail     *string    `json:"donor_email,omitempty" db:"donor_email"`
	CampaignID     *uuid.UUID `json:"campaign_id,omitempty" db:"campaign_id"`
	IsRecurring    bool       `json:"is_recurring" db:"is_recurring"`
	DonorType      *string    `json:"donor_type,omitempty" db:"donor_type"`
	DonationStatus *string    `json:"donation_status,omitempty" db:"donation_status"`
	ReceiptNumber  *string    `json:"receipt_number,omitempty" db:"receipt_number"`

	BuyerInfo         *datatypes.JSON     `json:"buyer_info,omitempty" db:"buyer_info"`
	Platform          *string             `json:"platform,omitempty" db:"platform"`
	PricePerCredit    decimal.NullDecimal `json:"price_per_credit" db:"price_per_credit"`
	TransactionStatus *string             `json:"transaction_status,omitempty" db:"transaction_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Credits returns the signed credit movement of the row.
func (t *Transaction) Credits() int64 {
	if t.Quantity == nil {
		return 0
	}
	switch t.Type {
	case TypeCarbonIssue:
		return *t.Quantity
	case TypeCarbonSale:
		return -*t.Quantity
	default:
		return 0
	}
}

// TransactionView adds the display label used in histories.
type TransactionView struct {
	Transaction
	TypeDisplay string `json:"type_display"`
}

type Campaign struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	ProjectID     uuid.UUID       `json:"project_id" db:"project_id"`
	CampaignName  string          `json:"campaign_name" db:"campaign_name"`
	Description   *string         `json:"description,omitempty" db:"description"`
	TargetAmount  decimal.Decimal `json:"target_amount" db:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount" db:"current_amount"`
	EndDate       *time.Time      `json:"end_date,omitempty" db:"end_date"`
	RewardTiers   *datatypes.JSON `json:"reward_tiers,omitempty" db:"reward_tiers"`
	Status        CampaignStatus  `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// CampaignProgress is a campaign with donation totals aggregated from the log.
type CampaignProgress struct {
	Campaign
	ProjectName        string          `json:"project_name" db:"project_name"`
	DonorCount         int64           `json:"donor_count" db:"donor_count"`
	ProgressPercentage decimal.Decimal `json:"progress_percentage" db:"-"`
}

// ProjectRef is the slice of a project the ledger depends on.
type ProjectRef struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ProjectName  string          `json:"project_name" db:"project_name"`
	AreaHectares decimal.Decimal `json:"area_hectares" db:"area_hectares"`
}

// ProjectImpact feeds the automatic credit calculation.
type ProjectImpact struct {
	TreesPlanted int64           `db:"trees_planted"`
	AreaHectares decimal.Decimal `db:"area_hectares"`
}

type CreditBalance struct {
	ProjectID  uuid.UUID `json:"project_id" db:"project_id"`
	Issued     int64     `json:"total_credits_issued" db:"issued"`
	Sold       int64     `json:"total_credits_sold" db:"sold"`
	Available  int64     `json:"available_credits" db:"-"`
	ComputedAt time.Time `json:"computed_at" db:"-"`
}

type FundingSummary struct {
	TotalCreditsIssued int64           `json:"total_credits_issued"`
	TotalCreditsSold   int64           `json:"total_credits_sold"`
	AvailableCredits   int64           `json:"available_credits"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TotalDonations     decimal.Decimal `json:"total_donations"`
	DonorCount         int64           `json:"donor_count"`
}

type ProjectFunding struct {
	ProjectID    uuid.UUID         `json:"project_id"`
	ProjectName  string            `json:"project_name"`
	Transactions []TransactionView `json:"transactions"`
	Summary      FundingSummary    `json:"summary"`
}

type DailyPrice struct {
	Date             string          `json:"date" db:"date"`
	AveragePrice     decimal.Decimal `json:"avg_price" db:"avg_price"`
	MinPrice         decimal.Decimal `json:"min_price" db:"min_price"`
	MaxPrice         decimal.Decimal `json:"max_price" db:"max_price"`
	TransactionCount int64           `json:"transaction_count" db:"transaction_count"`
}

// Request DTOs

type IssueCreditsRequest struct {
	ProjectID          uuid.UUID          `json:"project_id" validate:"required"`
	Quantity           *int64             `json:"quantity" validate:"omitempty,min=0"`
	AutoCalculate      bool               `json:"auto_calculate"`
	Note               string             `json:"note" validate:"max=2000"`
	VerificationStatus VerificationStatus `json:"verification_status" validate:"omitempty,oneof=pending verified"`
}

type SellCreditsRequest struct {
	ProjectID      uuid.UUID        `json:"project_id" validate:"required"`
	Quantity       int64            `json:"quantity" validate:"gt=0"`
	Amount         decimal.Decimal  `json:"amount"`
	BuyerInfo      datatypes.JSON   `json:"buyer_info"`
	Platform       string           `json:"platform" validate:"max=100"`
	PricePerCredit *decimal.Decimal `json:"price_per_credit"`
}

type DonateRequest struct {
	ProjectID   uuid.UUID       `json:"project_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	DonorName   string          `json:"donor_name" validate:"max=255"`
	DonorEmail  string          `json:"donor_email" validate:"omitempty,email"`
	CampaignID  *uuid.UUID      `json:"campaign_id"`
	IsRecurring bool            `json:"is_recurring"`
	DonorType   string          `json:"donor_type"`
}

type VerifyCreditsRequest struct {
	CreditID             uuid.UUID `json:"credit_id" validate:"required"`
	VerificationBody     string    `json:"verification_body" validate:"required,max=255"`
	VerificationDocument string    `json:"verification_document"`
}

type CreateCampaignRequest struct {
	ProjectID    uuid.UUID       `json:"project_id" validate:"required"`
	CampaignName string          `json:"campaign_name" validate:"required,max=255"`
	Description  string          `json:"description"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	EndDate      *time.Time      `json:"end_date"`
	RewardTiers  datatypes.JSON  `json:"reward_tiers"`
}

// Results

type IssueCreditsResult struct {
	CreditID           uuid.UUID          `json:"credit_id"`
	Quantity           int64              `json:"quantity"`
	VerificationStatus VerificationStatus `json:"verification_status"`
}

type SellCreditsResult struct {
	TransactionID    uuid.UUID       `json:"transaction_id"`
	RemainingCredits int64           `json:"remaining_credits"`
	PricePerCredit   decimal.Decimal `json:"price_per_credit"`
}

type DonationResult struct {
	DonationID    uuid.UUID `json:"donation_id"`
	ReceiptNumber string    `json:"receipt_number"`
}

type VerifyCreditsResult struct {
	CreditID           uuid.UUID          `json:"credit_id"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifiedAt         time.Time          `json:"verified_at"`
}
