package planting

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/validators"
)

// Registry is the planting and contribution log exposed over HTTP.
type Registry interface {
	CreateRecord(ctx context.Context, req CreateRecordRequest) (*PlantingRecord, error)
	RecordsByProject(ctx context.Context, projectID uuid.UUID) ([]PlantingRecord, error)
	RecordsByUser(ctx context.Context, userID uuid.UUID) ([]PlantingRecord, error)
	DeleteRecord(ctx context.Context, id uuid.UUID) error
	CreateContribution(ctx context.Context, req CreateContributionRequest) (*Contribution, error)
	ContributionsByUser(ctx context.Context, userID uuid.UUID) ([]Contribution, error)
	ContributionsByProject(ctx context.Context, projectID uuid.UUID) ([]Contribution, error)
	DeleteContribution(ctx context.Context, id uuid.UUID) error
	TreesPlanted(ctx context.Context, userID uuid.UUID) (*TreesPlanted, error)
}

type Handler struct {
	registry Registry
	logger   *zap.Logger
}

func NewHandler(registry Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

// RegisterRoutes mounts /planting-records and /contributions under rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, writes ...gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, writes...)
		return append(chain, handler)
	}

	records := rg.Group("/planting-records")
	records.POST("", write(h.createRecord)...)
	records.GET("/project/:projectId", h.recordsByProject)
	records.GET("/user/:userId", h.recordsByUser)
	records.DELETE("/:id", write(h.deleteRecord)...)

	contributions := rg.Group("/contributions")
	contributions.POST("", write(h.createContribution)...)
	contributions.GET("/user/:userId", h.contributionsByUser)
	contributions.GET("/project/:projectId", h.contributionsByProject)
	contributions.GET("/total-trees-planted/:userId", h.treesPlanted)
	contributions.DELETE("/:id", write(h.deleteContribution)...)
}

func (h *Handler) createRecord(c *gin.Context) {
	var req CreateRecordRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	record, err := h.registry.CreateRecord(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Planting record added successfully", "record": record})
}

func (h *Handler) recordsByProject(c *gin.Context) {
	id, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}
	records, err := h.registry.RecordsByProject(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) recordsByUser(c *gin.Context) {
	id, ok := h.uuidParam(c, "userId")
	if !ok {
		return
	}
	records, err := h.registry.RecordsByUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) deleteRecord(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.registry.DeleteRecord(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

func (h *Handler) createContribution(c *gin.Context) {
	var req CreateContributionRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	contribution, err := h.registry.CreateContribution(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Contribution added successfully", "contribution": contribution})
}

func (h *Handler) contributionsByUser(c *gin.Context) {
	id, ok := h.uuidParam(c, "userId")
	if !ok {
		return
	}
	list, err := h.registry.ContributionsByUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) contributionsByProject(c *gin.Context) {
	id, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}
	list, err := h.registry.ContributionsByProject(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) treesPlanted(c *gin.Context) {
	id, ok := h.uuidParam(c, "userId")
	if !ok {
		return
	}
	total, err := h.registry.TreesPlanted(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, total)
}

func (h *Handler) deleteContribution(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.registry.DeleteContribution(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contribution deleted successfully"})
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
