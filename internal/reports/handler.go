package reports

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
)

// Renderer produces downloadable funding documents.
type Renderer interface {
	Statement(ctx context.Context, projectID uuid.UUID, format ExportFormat) (*Document, error)
	Receipt(ctx context.Context, donationID uuid.UUID) (*Document, error)
}

// Handler serves statement and receipt downloads
type Handler struct {
	renderer Renderer
	logger   *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(renderer Renderer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes mounts the download routes next to the ledger routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/donations/:donationId/receipt", h.getReceipt)
	rg.GET("/:projectId/statement", h.getStatement)
}

func (h *Handler) getStatement(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.New(apperrors.KindInvalidArgument, "projectId must be a UUID"))
		return
	}

	format, err := ParseFormat(c.Query("format"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.New(apperrors.KindInvalidArgument, err.Error()))
		return
	}

	doc, err := h.renderer.Statement(c.Request.Context(), projectID, format)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	h.serve(c, doc, true)
}

func (h *Handler) getReceipt(c *gin.Context) {
	donationID, err := uuid.Parse(c.Param("donationId"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.New(apperrors.KindInvalidArgument, "donationId must be a UUID"))
		return
	}

	doc, err := h.renderer.Receipt(c.Request.Context(), donationID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}

	h.serve(c, doc, c.Query("download") == "true")
}

func (h *Handler) serve(c *gin.Context, doc *Document, attachment bool) {
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}
