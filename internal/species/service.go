package species

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/database"
	"reforest-portal/portal-backend/pkg/validators"
)

var ErrSpeciesNotFound = apperrors.New(apperrors.KindNotFound, "tree species not found")

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

func (s *Service) Create(ctx context.Context, req SpeciesRequest) (*TreeSpecies, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	species := &TreeSpecies{}
	req.apply(species)

	if err := s.repo.Create(ctx, species); err != nil {
		return nil, database.Classify(err, "create tree species")
	}
	s.logger.Info("Tree species added",
		zap.String("species_id", species.ID.String()),
		zap.String("name", species.Name))
	return species, nil
}

func (s *Service) List(ctx context.Context) ([]TreeSpecies, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, database.Classify(err, "list tree species")
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TreeSpecies, error) {
	species, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, database.Classify(err, "get tree species")
	}
	if species == nil {
		return nil, ErrSpeciesNotFound
	}
	return species, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req SpeciesRequest) (*TreeSpecies, error) {
	if err := validators.Struct(req); err != nil {
		return nil, err
	}
	species, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req.apply(species)

	ok, err := s.repo.Update(ctx, species)
	if err != nil {
		return nil, database.Classify(err, "update tree species")
	}
	if !ok {
		return nil, ErrSpeciesNotFound
	}
	return species, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return database.Classify(err, "delete tree species")
	}
	if !ok {
		return ErrSpeciesNotFound
	}
	return nil
}
