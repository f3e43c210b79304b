package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/database"
	"reforest-portal/portal-backend/pkg/storage"
	"reforest-portal/portal-backend/pkg/validators"
	"reforest-portal/portal-backend/pkg/workflows"
)

const (
	DefaultMaxImageBytes = 5 * 1024 * 1024
	DefaultURLExpiry     = time.Hour
)

var (
	ErrTaskNotFound       = apperrors.New(apperrors.KindNotFound, "task not found")
	ErrNoAssignedTasks    = apperrors.New(apperrors.KindNotFound, "no tasks assigned to this user")
	ErrNoProgressImage    = apperrors.New(apperrors.KindNotFound, "task has no progress image")
	ErrUnsupportedImage   = apperrors.New(apperrors.KindInvalidArgument, "only jpeg, png and gif images are allowed")
	ErrImageRequired      = apperrors.New(apperrors.KindInvalidArgument, "a progress image is required")
	ErrUserLocationNeeded = apperrors.New(apperrors.KindInvalidArgument, "user_location is required")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Service manages field tasks and their progress photos
type Service struct {
	repo          Repository
	store         storage.ObjectStore
	logger        *zap.Logger
	statuses      *workflows.StateMachine
	maxImageBytes int64
	urlExpiry     time.Duration
	now           func() time.Time
}

type Option func(*Service)

func WithImageLimit(maxBytes int64) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxImageBytes = maxBytes
		}
	}
}

func WithURLExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		if expiry > 0 {
			s.urlExpiry = expiry
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new task service
func NewService(repo Repository, store storage.ObjectStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:          repo,
		store:         store,
		logger:        logger,
		statuses:      workflows.NewStateMachine(workflows.TaskStatusTransitions),
		maxImageBytes: DefaultMaxImageBytes,
		urlExpiry:     DefaultURLExpiry,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	if err := checkDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	now := s.now()
	task := &Task{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		AssignedUser: req.AssignedUser,
		CreatedBy:    req.CreatedBy,
		ProjectID:    req.ProjectID,
		Location:     req.Location,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Status:       StatusPending,
		Priority:     priorityOrDefault(req.Priority),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, classify(err, "create task")
	}

	s.logger.Info("Task created",
		zap.String("task_id", task.ID.String()),
		zap.String("title", task.Title))
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context) ([]Task, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, classify(err, "list tasks")
	}
	return tasks, nil
}

// ListAssigned returns the user's tasks. An empty result is reported as NotFound.
func (s *Service) ListAssigned(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	tasks, err := s.repo.ListAssigned(ctx, userID)
	if err != nil {
		return nil, classify(err, "list assigned tasks")
	}
	if len(tasks) == 0 {
		return nil, ErrNoAssignedTasks
	}
	return tasks, nil
}

func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, classify(err, "get task")
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	s.attachImageURL(ctx, task)
	return task, nil
}

func (s *Service) UpdateTask(ctx context.Context, id uuid.UUID, req UpdateTaskRequest) (*Task, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	if err := checkDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		AssignedUser: req.AssignedUser,
		ProjectID:    req.ProjectID,
		Location:     req.Location,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Priority:     priorityOrDefault(req.Priority),
		UpdatedAt:    s.now(),
	}
	ok, err := s.repo.Update(ctx, task)
	if err != nil {
		return nil, classify(err, "update task")
	}
	if !ok {
		return nil, ErrTaskNotFound
	}
	return s.GetTask(ctx, id)
}

func (s *Service) DeleteTask(ctx context.Context, id uuid.UUID) error {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return classify(err, "get task")
	}
	if task == nil {
		return ErrTaskNotFound
	}

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return classify(err, "delete task")
	}
	if !ok {
		return ErrTaskNotFound
	}

	if task.ProgressImage != nil {
		if err := s.store.Delete(ctx, *task.ProgressImage); err != nil {
			s.logger.Warn("Failed to delete progress image",
				zap.String("task_id", id.String()),
				zap.String("key", *task.ProgressImage),
				zap.Error(err))
		}
	}
	return nil
}

// UpdateStatus moves a task to a new status with a progress photo taken at the
// worker's location. The photo is stored first and removed again when the row
// cannot be updated.
func (s *Service) UpdateStatus(ctx context.Context, update StatusUpdate) (*Task, error) {
	if update.Status == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "status is required")
	}
	if !s.statuses.IsKnown(update.Status) {
		return nil, apperrors.New(apperrors.KindInvalidArgument,
			fmt.Sprintf("invalid status %q", update.Status))
	}
	if strings.TrimSpace(update.UserLocation) == "" {
		return nil, ErrUserLocationNeeded
	}
	if (update.Latitude == nil) != (update.Longitude == nil) {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "latitude and longitude must be given together")
	}
	ext, err := s.checkImage(update.Image)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, update.TaskID)
	if err != nil {
		return nil, classify(err, "get task")
	}
	if current == nil {
		return nil, ErrTaskNotFound
	}
	// Re-sending the current status replaces the progress photo.
	if current.Status != update.Status && !s.statuses.CanTransition(current.Status, update.Status) {
		return nil, apperrors.New(apperrors.KindInvalidState,
			fmt.Sprintf("cannot move task from %q to %q", current.Status, update.Status)).
			WithDetails(map[string]any{"allowed": s.statuses.GetAllowedTransitions(current.Status)})
	}

	now := s.now()
	key := fmt.Sprintf("tasks/task_%s_%d%s", update.TaskID, now.UnixMilli(), ext)
	if err := s.store.Upload(ctx, key, bytes.NewReader(update.Image.Data), update.Image.ContentType); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to store progress image")
	}

	task, err := s.repo.UpdateProgress(ctx, ProgressUpdate{
		TaskID:        update.TaskID,
		Status:        update.Status,
		UserLocation:  strings.TrimSpace(update.UserLocation),
		Latitude:      update.Latitude,
		Longitude:     update.Longitude,
		ProgressImage: key,
		UpdatedAt:     now,
	})
	if err != nil || task == nil {
		var result error = ErrTaskNotFound
		if err != nil {
			result = classify(err, "update task status")
		}
		if cerr := s.store.Delete(ctx, key); cerr != nil {
			s.logger.Error("Failed to remove orphaned progress image",
				zap.String("key", key),
				zap.Error(cerr))
			return nil, multierr.Append(result, cerr)
		}
		return nil, result
	}

	if current.ProgressImage != nil && *current.ProgressImage != key {
		if err := s.store.Delete(ctx, *current.ProgressImage); err != nil {
			s.logger.Warn("Failed to delete replaced progress image",
				zap.String("key", *current.ProgressImage),
				zap.Error(err))
		}
	}

	s.logger.Info("Task status updated",
		zap.String("task_id", update.TaskID.String()),
		zap.String("from", current.Status),
		zap.String("to", update.Status))

	s.attachImageURL(ctx, task)
	return task, nil
}

// GetTaskImages returns the progress photo as a presigned link.
func (s *Service) GetTaskImages(ctx context.Context, id uuid.UUID) ([]TaskImage, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, classify(err, "get task")
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if task.ProgressImage == nil || *task.ProgressImage == "" {
		return nil, ErrNoProgressImage
	}

	url, err := s.store.PresignedURL(ctx, *task.ProgressImage, s.urlExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNoProgressImage
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to sign image url")
	}
	return []TaskImage{{TaskID: task.ID, URL: url, UpdatedAt: task.UpdatedAt}}, nil
}

func (s *Service) checkImage(img *Image) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", ErrImageRequired
	}
	size := img.Size
	if size == 0 {
		size = int64(len(img.Data))
	}
	if size > s.maxImageBytes {
		return "", apperrors.New(apperrors.KindInvalidArgument,
			fmt.Sprintf("image exceeds the %d byte limit", s.maxImageBytes))
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(img.ContentType, ";", 2)[0]))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedImage
	}
	if fileExt := strings.ToLower(filepath.Ext(img.Filename)); fileExt == ".jpeg" || fileExt == ".png" || fileExt == ".gif" {
		ext = fileExt
	}
	return ext, nil
}

func (s *Service) attachImageURL(ctx context.Context, task *Task) {
	if task.ProgressImage == nil || *task.ProgressImage == "" {
		return
	}
	url, err := s.store.PresignedURL(ctx, *task.ProgressImage, s.urlExpiry)
	if err != nil {
		s.logger.Debug("Progress image unavailable",
			zap.String("task_id", task.ID.String()),
			zap.Error(err))
		return
	}
	task.ProgressImageURL = url
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return apperrors.New(apperrors.KindInvalidArgument, "end_date must not be before start_date")
	}
	return nil
}

func priorityOrDefault(priority string) string {
	if priority == "" {
		return "Medium"
	}
	return priority
}

func classify(err error, action string) error {
	return database.Classify(err, action)
}
