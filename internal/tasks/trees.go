package tasks

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/geospatial"
)

const (
	DefaultNearbyRadiusKm = 10.0
	recentTreeWindow      = 30 * 24 * time.Hour
)

func (s *Service) PlantedTrees(ctx context.Context) ([]PlantedTree, error) {
	trees, err := s.repo.PlantedTrees(ctx, TreeFilter{})
	if err != nil {
		return nil, classify(err, "list planted trees")
	}
	return trees, nil
}

func (s *Service) TreesByProject(ctx context.Context, projectID uuid.UUID) ([]PlantedTree, error) {
	trees, err := s.repo.PlantedTrees(ctx, TreeFilter{ProjectID: &projectID})
	if err != nil {
		return nil, classify(err, "list planted trees")
	}
	return trees, nil
}

// NearbyTrees returns the trees within radiusKm of the point, nearest first.
// A non-positive radius uses DefaultNearbyRadiusKm.
func (s *Service) NearbyTrees(ctx context.Context, latitude, longitude, radiusKm float64) ([]PlantedTree, error) {
	origin, err := geospatial.NewPoint(latitude, longitude)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err, "invalid coordinates")
	}
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}

	trees, err := s.repo.PlantedTrees(ctx, TreeFilter{})
	if err != nil {
		return nil, classify(err, "list planted trees")
	}

	nearby := make([]PlantedTree, 0, len(trees))
	for _, tree := range trees {
		distance := geospatial.DistanceKm(origin, orb.Point{tree.Longitude, tree.Latitude})
		if distance > radiusKm {
			continue
		}
		tree.DistanceKm = &distance
		nearby = append(nearby, tree)
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return *nearby[i].DistanceKm < *nearby[j].DistanceKm
	})
	return nearby, nil
}

// TreesGeoJSON renders planted trees as a FeatureCollection of points.
func (s *Service) TreesGeoJSON(ctx context.Context, projectID *uuid.UUID) (*geojson.FeatureCollection, error) {
	trees, err := s.repo.PlantedTrees(ctx, TreeFilter{ProjectID: projectID})
	if err != nil {
		return nil, classify(err, "list planted trees")
	}

	fc := geojson.NewFeatureCollection()
	for _, tree := range trees {
		f := geojson.NewFeature(orb.Point{tree.Longitude, tree.Latitude})
		f.ID = tree.ID.String()
		f.Properties["title"] = tree.Title
		f.Properties["location"] = tree.Location
		f.Properties["planted_date"] = tree.PlantedDate.Format(time.RFC3339)
		if tree.ProjectID != nil {
			f.Properties["project_id"] = tree.ProjectID.String()
		}
		if tree.ProjectName != nil {
			f.Properties["project_name"] = *tree.ProjectName
		}
		if tree.PlantedBy != nil {
			f.Properties["planted_by"] = *tree.PlantedBy
		}
		fc.Append(f)
	}
	return fc, nil
}

// TreeStatistics runs the three aggregate queries concurrently.
func (s *Service) TreeStatistics(ctx context.Context) (*TreeStatistics, error) {
	stats := &TreeStatistics{}
	since := s.now().Add(-recentTreeWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.repo.CountPlantedTrees(gctx, nil)
		stats.TotalTrees = total
		return err
	})
	g.Go(func() error {
		recent, err := s.repo.CountPlantedTrees(gctx, &since)
		stats.RecentTrees = recent
		return err
	})
	g.Go(func() error {
		byProject, err := s.repo.TreesByProject(gctx)
		stats.TreesByProject = byProject
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, classify(err, "compute tree statistics")
	}
	return stats, nil
}
