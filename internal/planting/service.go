package planting

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/database"
	"reforest-portal/portal-backend/pkg/validators"
)

var (
	ErrRecordNotFound       = apperrors.New(apperrors.KindNotFound, "planting record not found")
	ErrContributionNotFound = apperrors.New(apperrors.KindNotFound, "contribution not found")
)

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) CreateRecord(ctx context.Context, req CreateRecordRequest) (*PlantingRecord, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	planted, err := parseDate(req.DatePlanted)
	if err != nil {
		return nil, err
	}

	record := &PlantingRecord{
		ProjectID:       req.ProjectID,
		SpeciesID:       req.SpeciesID,
		UserID:          req.UserID,
		Quantity:        req.Quantity,
		LocationDetails: req.LocationDetails,
		DatePlanted:     planted,
		SurvivalRate:    req.SurvivalRate,
	}
	if err := s.repo.CreateRecord(ctx, record); err != nil {
		return nil, database.Classify(err, "create planting record")
	}

	s.logger.Info("Planting record added",
		zap.String("record_id", record.ID.String()),
		zap.String("project_id", record.ProjectID.String()),
		zap.Int("quantity", record.Quantity))
	return record, nil
}

func (s *Service) RecordsByProject(ctx context.Context, projectID uuid.UUID) ([]PlantingRecord, error) {
	records, err := s.repo.RecordsByProject(ctx, projectID)
	if err != nil {
		return nil, database.Classify(err, "list planting records")
	}
	return records, nil
}

func (s *Service) RecordsByUser(ctx context.Context, userID uuid.UUID) ([]PlantingRecord, error) {
	records, err := s.repo.RecordsByUser(ctx, userID)
	if err != nil {
		return nil, database.Classify(err, "list planting records")
	}
	return records, nil
}

func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.DeleteRecord(ctx, id)
	if err != nil {
		return database.Classify(err, "delete planting record")
	}
	if !ok {
		return ErrRecordNotFound
	}
	return nil
}

func (s *Service) CreateContribution(ctx context.Context, req CreateContributionRequest) (*Contribution, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	contribution := &Contribution{
		UserID:       req.UserID,
		ProjectID:    req.ProjectID,
		ActivityType: strings.ToLower(strings.TrimSpace(req.ActivityType)),
		Quantity:     req.Quantity,
		Date:         date,
	}
	if err := s.repo.CreateContribution(ctx, contribution); err != nil {
		return nil, database.Classify(err, "create contribution")
	}
	return contribution, nil
}

func (s *Service) ContributionsByUser(ctx context.Context, userID uuid.UUID) ([]Contribution, error) {
	list, err := s.repo.ContributionsByUser(ctx, userID)
	if err != nil {
		return nil, database.Classify(err, "list contributions")
	}
	return list, nil
}

func (s *Service) ContributionsByProject(ctx context.Context, projectID uuid.UUID) ([]Contribution, error) {
	list, err := s.repo.ContributionsByProject(ctx, projectID)
	if err != nil {
		return nil, database.Classify(err, "list contributions")
	}
	return list, nil
}

func (s *Service) DeleteContribution(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.DeleteContribution(ctx, id)
	if err != nil {
		return database.Classify(err, "delete contribution")
	}
	if !ok {
		return ErrContributionNotFound
	}
	return nil
}

// TreesPlanted sums the user's tree_planting contributions.
func (s *Service) TreesPlanted(ctx context.Context, userID uuid.UUID) (*TreesPlanted, error) {
	total, err := s.repo.SumQuantity(ctx, userID, ActivityTreePlanting)
	if err != nil {
		return nil, database.Classify(err, "sum contributions")
	}
	return &TreesPlanted{UserID: userID, TotalTrees: total}, nil
}

func parseDate(raw string) (datatypes.Date, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return datatypes.Date{}, apperrors.Wrap(apperrors.KindInvalidArgument, err, "dates must use YYYY-MM-DD")
	}
	return datatypes.Date(t), nil
}
