package species

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TreeSpecies is a catalog entry describing a species used for planting.
type TreeSpecies struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name                string    `json:"name" gorm:"not null"`
	Native              bool      `json:"native" gorm:"not null"`
	CarbonRate          *float64  `json:"carbon_rate"`
	SoilType            *string   `json:"soil_type"`
	Notes               *string   `json:"notes"`
	ImagePath           *string   `json:"image_url" gorm:"column:image_path"`
	GrowthConditions    *string   `json:"growth_conditions"`
	CommonUses          *string   `json:"common_uses"`
	PlantingSeason      *string   `json:"planting_season"`
	SoilImprovement     *string   `json:"soil_improvement"`
	EnvironmentalImpact *string   `json:"environmental_impact"`
	RwandanName         *string   `json:"rwandan_name"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (TreeSpecies) TableName() string {
	return "tree_species"
}

// BeforeCreate hook for UUID generation
func (s *TreeSpecies) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SpeciesRequest is the body of create and update. Update replaces every field.
type SpeciesRequest struct {
	Name                string   `json:"name" validate:"required,max=120"`
	Native              bool     `json:"native"`
	CarbonRate          *float64 `json:"carbon_rate" validate:"omitempty,gte=0"`
	SoilType            *string  `json:"soil_type"`
	Notes               *string  `json:"notes"`
	ImageURL            *string  `json:"image_url" validate:"omitempty,url"`
	GrowthConditions    *string  `json:"growth_conditions"`
	CommonUses          *string  `json:"common_uses"`
	PlantingSeason      *string  `json:"planting_season"`
	SoilImprovement     *string  `json:"soil_improvement"`
	EnvironmentalImpact *string  `json:"environmental_impact"`
	RwandanName         *string  `json:"rwandan_name"`
}

// apply copies the request onto s, storing blank strings as NULL.
func (r SpeciesRequest) apply(s *TreeSpecies) {
	s.Name = r.Name
	s.Native = r.Native
	s.CarbonRate = r.CarbonRate
	s.SoilType = nullable(r.SoilType)
	s.Notes = nullable(r.Notes)
	s.ImagePath = nullable(r.ImageURL)
	s.GrowthConditions = nullable(r.GrowthConditions)
	s.CommonUses = nullable(r.CommonUses)
	s.PlantingSeason = nullable(r.PlantingSeason)
	s.SoilImprovement = nullable(r.SoilImprovement)
	s.EnvironmentalImpact = nullable(r.EnvironmentalImpact)
	s.RwandanName = nullable(r.RwandanName)
}

func nullable(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
