package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/database"
	"reforest-portal/portal-backend/pkg/geospatial"
	"reforest-portal/portal-backend/pkg/validators"
	"reforest-portal/portal-backend/pkg/workflows"
)

var (
	ErrProjectNotFound        = apperrors.New(apperrors.KindNotFound, "project not found")
	ErrStatusChangedMeanwhile = apperrors.New(apperrors.KindConflict, "project status changed concurrently, reload and retry")
)

type Service struct {
	repo     Repository
	logger   *zap.Logger
	statuses *workflows.StateMachine
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		logger:   logger,
		statuses: workflows.NewStateMachine(workflows.ProjectStatusTransitions),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}

	now := s.now()
	project := &Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	geometry, err := parseGeometry(req.Geometry)
	if err != nil {
		return nil, err
	}
	if geometry != nil {
		project.Geometry = []byte(req.Geometry)
	}

	switch {
	case req.AreaHectares != nil:
		project.AreaHectares = *req.AreaHectares
	case geometry != nil:
		project.AreaHectares = geospatial.AreaHectares(geometry)
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, database.Classify(err, "create project")
	}

	s.logger.Info("Project registered",
		zap.String("project_id", project.ID.String()),
		zap.String("name", project.Name),
		zap.Float64("area_hectares", project.AreaHectares))
	return project, nil
}

func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	if filter.Status != "" && !s.statuses.IsKnown(filter.Status) {
		return nil, apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf("unknown project status %q", filter.Status))
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, database.Classify(err, "list projects")
	}
	return list, nil
}

func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	project, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, database.Classify(err, "get project")
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// UpdateProject applies the present fields. A new geometry re-measures the area
// unless area_hectares is given in the same request.
func (s *Service) UpdateProject(ctx context.Context, id uuid.UUID, req UpdateProjectRequest) (*Project, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	geometry, err := parseGeometry(req.Geometry)
	if err != nil {
		return nil, err
	}

	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if geometry != nil {
		project.Geometry = []byte(req.Geometry)
		project.AreaHectares = geospatial.AreaHectares(geometry)
	}
	if req.AreaHectares != nil {
		project.AreaHectares = *req.AreaHectares
	}
	project.UpdatedAt = s.now()

	ok, err := s.repo.Update(ctx, project)
	if err != nil {
		return nil, database.Classify(err, "update project")
	}
	if !ok {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, req ChangeStatusRequest) (*Project, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !s.statuses.IsKnown(status) {
		return nil, apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf("unknown project status %q", req.Status))
	}

	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.statuses.CanTransition(project.Status, status) {
		return nil, apperrors.New(apperrors.KindInvalidState,
			fmt.Sprintf("cannot move project from %q to %q", project.Status, status)).
			WithDetails(map[string]any{"allowed": s.statuses.GetAllowedTransitions(project.Status)})
	}

	change := &StatusChange{
		ProjectID:  id,
		FromStatus: project.Status,
		Status:     status,
		ChangedBy:  req.ChangedBy,
		ChangedAt:  s.now(),
	}
	ok, err := s.repo.ChangeStatus(ctx, change)
	if err != nil {
		return nil, database.Classify(err, "change project status")
	}
	if !ok {
		return nil, ErrStatusChangedMeanwhile
	}

	s.logger.Info("Project status changed",
		zap.String("project_id", id.String()),
		zap.String("from", change.FromStatus),
		zap.String("to", change.Status))

	project.Status = status
	project.UpdatedAt = change.ChangedAt
	return project, nil
}

func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusChange, error) {
	if _, err := s.GetProject(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, database.Classify(err, "list project status history")
	}
	return history, nil
}

// parseGeometry returns nil for an absent or null geometry.
func parseGeometry(raw []byte) (orb.Geometry, error) {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil, nil
	}
	geometry, err := geospatial.ParseGeometry(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err, "geometry must be GeoJSON")
	}
	return geometry, nil
}
