package projects

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/validators"
)

// Registry is the project service as seen by the HTTP layer.
type Registry interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, req UpdateProjectRequest) (*Project, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, req ChangeStatusRequest) (*Project, error)
	StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusChange, error)
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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, writes ...gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, writes...)
		return append(chain, handler)
	}

	rg.POST("", write(h.create)...)
	rg.GET("", h.list)
	rg.GET("/:projectId", h.get)
	rg.PUT("/:projectId", write(h.update)...)
	rg.PUT("/:projectId/status", write(h.changeStatus)...)
	rg.GET("/:projectId/history", h.history)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateProjectRequest
	if err := validators.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	project, err := h.registry.CreateProject(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Project created", "project": project})
}

func (h *Handler) list(c *gin.Context) {
	list, err := h.registry.ListProjects(c.Request.Context(), ProjectFilter{Status: c.Query("status")})
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": list})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	project, err := h.registry.GetProject(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) update(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if err := validators.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	project, err := h.registry.UpdateProject(c.Request.Context(), id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project updated", "project": project})
}

func (h *Handler) changeStatus(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if err := validators.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	project, err := h.registry.ChangeStatus(c.Request.Context(), id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project status updated", "project": project})
}

func (h *Handler) history(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	history, err := h.registry.StatusHistory(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) projectID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.New(apperrors.KindInvalidArgument, "projectId must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
