package species

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/validators"
)

type Catalog interface {
	Create(ctx context.Context, req SpeciesRequest) (*TreeSpecies, error)
	List(ctx context.Context) ([]TreeSpecies, error)
	Get(ctx context.Context, id uuid.UUID) (*TreeSpecies, error)
	Update(ctx context.Context, id uuid.UUID, req SpeciesRequest) (*TreeSpecies, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	catalog Catalog
	logger  *zap.Logger
}

func NewHandler(catalog Catalog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{catalog: catalog, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, writes ...gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, writes...)
		return append(chain, handler)
	}

	rg.POST("", write(h.create)...)
	rg.GET("", h.list)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", write(h.update)...)
	rg.DELETE("/:id", write(h.delete)...)
}

func (h *Handler) create(c *gin.Context) {
	var req SpeciesRequest
	if err := validators.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	species, err := h.catalog.Create(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Tree species added", "species": species})
}

func (h *Handler) list(c *gin.Context) {
	list, err := h.catalog.List(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) get(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	species, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, species)
}

func (h *Handler) update(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var req SpeciesRequest
	if err := validators.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	species, err := h.catalog.Update(c.Request.Context(), id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tree species updated", "species": species})
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tree species deleted"})
}

func (h *Handler) idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.New(apperrors.KindInvalidArgument, "id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
