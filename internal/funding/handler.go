package funding

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/validators"
)

// Ledger is the set of funding operations exposed over HTTP.
type Ledger interface {
	IssueCredits(ctx context.Context, req IssueCreditsRequest) (*IssueCreditsResult, error)
	SellCredits(ctx context.Context, req SellCreditsRequest) (*SellCreditsResult, error)
	Donate(ctx context.Context, req DonateRequest) (*DonationResult, error)
	VerifyCredits(ctx context.Context, req VerifyCreditsRequest) (*VerifyCreditsResult, error)
	CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*CampaignProgress, error)
	ListCampaigns(ctx context.Context, projectID *uuid.UUID) ([]Campaign, error)
	GetProjectFunding(ctx context.Context, projectID uuid.UUID) (*ProjectFunding, error)
	GetMarketPricing(ctx context.Context) ([]DailyPrice, error)
	Balance(ctx context.Context, projectID uuid.UUID) (*CreditBalance, error)
}

type Handler struct {
	ledger Ledger
	logger *zap.Logger
}

func NewHandler(ledger Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes mounts the ledger under rg. Middleware in writes (auth,
// idempotency) is applied to the state-changing routes only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, writes ...gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, writes...)
		return append(chain, handler)
	}

	rg.GET("/campaigns", h.ListCampaigns)
	rg.POST("/campaigns", write(h.CreateCampaign)...)
	rg.GET("/campaigns/:campaignId", h.GetCampaign)
	rg.POST("/issue", write(h.IssueCredits)...)
	rg.POST("/sell", write(h.SellCredits)...)
	rg.POST("/donate", write(h.Donate)...)
	rg.POST("/verify", write(h.VerifyCredits)...)
	rg.GET("/market-pricing", h.GetMarketPricing)
	rg.GET("/:projectId", h.GetProjectFunding)
	rg.GET("/:projectId/balance", h.GetBalance)
}

func (h *Handler) IssueCredits(c *gin.Context) {
	var req IssueCreditsRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.ledger.IssueCredits(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":             "Carbon credits issued successfully",
		"credit_id":           result.CreditID,
		"quantity":            result.Quantity,
		"verification_status": result.VerificationStatus,
	})
}

func (h *Handler) SellCredits(c *gin.Context) {
	var req SellCreditsRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.ledger.SellCredits(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":           "Carbon credits sold successfully",
		"transaction_id":    result.TransactionID,
		"remaining_credits": result.RemainingCredits,
		"price_per_credit":  result.PricePerCredit,
	})
}

func (h *Handler) Donate(c *gin.Context) {
	var req DonateRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.ledger.Donate(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Donation recorded successfully",
		"donation_id":    result.DonationID,
		"receipt_number": result.ReceiptNumber,
	})
}

func (h *Handler) VerifyCredits(c *gin.Context) {
	var req VerifyCreditsRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.ledger.VerifyCredits(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":             "Carbon credits verified successfully",
		"credit_id":           result.CreditID,
		"verification_status": result.VerificationStatus,
		"verified_at":         result.VerifiedAt,
	})
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	campaign, err := h.ledger.CreateCampaign(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Campaign created successfully",
		"campaign": campaign,
	})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := h.uuidParam(c, "campaignId")
	if !ok {
		return
	}

	campaign, err := h.ledger.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	var projectID *uuid.UUID
	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(c, apperrors.New(apperrors.KindInvalidArgument, "project_id must be a UUID"))
			return
		}
		projectID = &id
	}

	campaigns, err := h.ledger.ListCampaigns(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func (h *Handler) GetProjectFunding(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}

	funding, err := h.ledger.GetProjectFunding(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, funding)
}

func (h *Handler) GetBalance(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (h *Handler) GetMarketPricing(c *gin.Context) {
	prices, err := h.ledger.GetMarketPricing(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pricing_data": prices})
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.fail(c, apperrors.New(apperrors.KindInvalidArgument, name+" must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	apperrors.Respond(c, h.logger, err)
}
