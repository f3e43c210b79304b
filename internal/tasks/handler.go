package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/validators"
)

// TaskService is the set of task and tree operations exposed over HTTP.
type TaskService interface {
	CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error)
	ListTasks(ctx context.Context) ([]Task, error)
	ListAssigned(ctx context.Context, userID uuid.UUID) ([]Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, req UpdateTaskRequest) (*Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, update StatusUpdate) (*Task, error)
	GetTaskImages(ctx context.Context, id uuid.UUID) ([]TaskImage, error)

	PlantedTrees(ctx context.Context) ([]PlantedTree, error)
	TreesByProject(ctx context.Context, projectID uuid.UUID) ([]PlantedTree, error)
	NearbyTrees(ctx context.Context, latitude, longitude, radiusKm float64) ([]PlantedTree, error)
	TreesGeoJSON(ctx context.Context, projectID *uuid.UUID) (*geojson.FeatureCollection, error)
	TreeStatistics(ctx context.Context) (*TreeStatistics, error)
}

type Handler struct {
	service       TaskService
	logger        *zap.Logger
	maxImageBytes int64
}

func NewHandler(service TaskService, logger *zap.Logger, maxImageBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Handler{service: service, logger: logger, maxImageBytes: maxImageBytes}
}

// RegisterRoutes mounts task routes under rg. Middleware in writes applies to
// the state-changing routes only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, writes ...gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, writes...)
		return append(chain, handler)
	}

	rg.POST("", write(h.CreateTask)...)
	rg.GET("", h.ListTasks)
	rg.GET("/assigned/:userId", h.ListAssigned)
	rg.GET("/:taskId", h.GetTask)
	rg.PUT("/:taskId", write(h.UpdateTask)...)
	rg.DELETE("/:taskId", write(h.DeleteTask)...)
	rg.PUT("/:taskId/status", write(h.UpdateStatus)...)
	rg.GET("/:taskId/images", h.GetTaskImages)
}

// RegisterTreeRoutes mounts the planted tree views under rg.
func (h *Handler) RegisterTreeRoutes(rg *gin.RouterGroup) {
	rg.GET("/planted", h.PlantedTrees)
	rg.GET("/project/:projectId", h.TreesByProject)
	rg.GET("/statistics", h.TreeStatistics)
	rg.GET("/nearby", h.NearbyTrees)
	rg.GET("/geojson", h.TreesGeoJSON)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	task, err := h.service.CreateTask(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) ListAssigned(c *gin.Context) {
	userID, ok := h.uuidParam(c, "userId")
	if !ok {
		return
	}
	tasks, err := h.service.ListAssigned(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) GetTask(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskId")
	if !ok {
		return
	}
	task, err := h.service.GetTask(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskId")
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if err := validators.BindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	task, err := h.service.UpdateTask(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskId")
	if !ok {
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// UpdateStatus accepts a multipart form with the photo in the taskImage field.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskId")
	if !ok {
		return
	}

	update := StatusUpdate{
		TaskID:       id,
		Status:       c.PostForm("status"),
		UserLocation: c.PostForm("user_location"),
	}
	var err error
	if update.Latitude, err = optionalFloat(c.PostForm("latitude"), "latitude"); err != nil {
		h.fail(c, err)
		return
	}
	if update.Longitude, err = optionalFloat(c.PostForm("longitude"), "longitude"); err != nil {
		h.fail(c, err)
		return
	}

	if update.Image, err = h.readImage(c); err != nil {
		h.fail(c, err)
		return
	}

	task, err := h.service.UpdateStatus(c.Request.Context(), update)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task status updated successfully",
		"task":    task,
	})
}

func (h *Handler) GetTaskImages(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskId")
	if !ok {
		return
	}
	images, err := h.service.GetTaskImages(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *Handler) PlantedTrees(c *gin.Context) {
	trees, err := h.service.PlantedTrees(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trees)
}

func (h *Handler) TreesByProject(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectId")
	if !ok {
		return
	}
	trees, err := h.service.TreesByProject(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trees)
}

func (h *Handler) NearbyTrees(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		h.fail(c, apperrors.New(apperrors.KindInvalidArgument, "latitude and longitude are required"))
		return
	}
	lon, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		h.fail(c, apperrors.New(apperrors.KindInvalidArgument, "latitude and longitude are required"))
		return
	}
	radius := 0.0
	if raw := c.Query("radius"); raw != "" {
		if radius, err = strconv.ParseFloat(raw, 64); err != nil {
			h.fail(c, apperrors.New(apperrors.KindInvalidArgument, "radius must be a number"))
			return
		}
	}

	trees, err := h.service.NearbyTrees(c.Request.Context(), lat, lon, radius)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trees)
}

func (h *Handler) TreesGeoJSON(c *gin.Context) {
	var projectID *uuid.UUID
	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(c, apperrors.New(apperrors.KindInvalidArgument, "project_id must be a UUID"))
			return
		}
		projectID = &id
	}

	fc, err := h.service.TreesGeoJSON(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		h.fail(c, apperrors.Wrap(apperrors.KindInternal, err, "failed to encode geojson"))
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

func (h *Handler) TreeStatistics(c *gin.Context) {
	stats, err := h.service.TreeStatistics(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) readImage(c *gin.Context) (*Image, error) {
	header, err := c.FormFile("taskImage")
	if err != nil {
		return nil, ErrImageRequired
	}
	if header.Size > h.maxImageBytes {
		return nil, apperrors.New(apperrors.KindInvalidArgument,
			fmt.Sprintf("image exceeds the %d byte limit", h.maxImageBytes))
	}

	file, err := header.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err, "failed to read image")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err, "failed to read image")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &Image{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
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

func optionalFloat(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalidArgument, field+" must be a number")
	}
	return &v, nil
}
