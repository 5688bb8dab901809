package models

import (
	"time"

	"github.com/google/uuid"
)

// TerritoryLevel is the administrative or electoral granularity of a territory.
type TerritoryLevel string

const (
	LevelMunicipality     TerritoryLevel = "municipality"
	LevelDistrict         TerritoryLevel = "district"
	LevelCensusSector     TerritoryLevel = "census_sector"
	LevelElectoralZone    TerritoryLevel = "electoral_zone"
	LevelElectoralSection TerritoryLevel = "electoral_section"
)

// Rank orders levels from coarse to fine; a parent must have a lower rank.
func (l TerritoryLevel) Rank() int {
	switch l {
	case LevelMunicipality:
		return 0
	case LevelDistrict, LevelElectoralZone:
		return 1
	case LevelCensusSector, LevelElectoralSection:
		return 2
	default:
		return 99
	}
}

// DimTerritory is one row of silver.dim_territory.
type DimTerritory struct {
	TerritoryID          uuid.UUID      `gorm:"type:uuid;primaryKey;column:territory_id" json:"territory_id"`
	Level                TerritoryLevel `gorm:"column:level;not null;uniqueIndex:uq_dim_territory_identity" json:"level"`
	ParentTerritoryID    *uuid.UUID     `gorm:"type:uuid;column:parent_territory_id;index" json:"parent_territory_id,omitempty"`
	CanonicalKey         string         `gorm:"column:canonical_key;not null;uniqueIndex" json:"canonical_key"`
	SourceSystem         string         `gorm:"column:source_system;not null" json:"source_system"`
	SourceEntityID       string         `gorm:"column:source_entity_id;not null" json:"source_entity_id"`
	IBGEGeocode          *string        `gorm:"column:ibge_geocode;uniqueIndex:uq_dim_territory_identity" json:"ibge_geocode,omitempty"`
	TSEZone              *string        `gorm:"column:tse_zone;uniqueIndex:uq_dim_territory_identity" json:"tse_zone,omitempty"`
	TSESection           *string        `gorm:"column:tse_section;uniqueIndex:uq_dim_territory_identity" json:"tse_section,omitempty"`
	Name                 string         `gorm:"column:name;not null" json:"name"`
	NormalizedName       string         `gorm:"column:normalized_name;not null;index" json:"normalized_name"`
	UF                   string         `gorm:"column:uf;size:2;not null" json:"uf"`
	MunicipalityIBGECode string         `gorm:"column:municipality_ibge_code;size:7;not null;uniqueIndex:uq_dim_territory_identity" json:"municipality_ibge_code"`
	ValidFrom            *time.Time     `gorm:"column:valid_from;type:date" json:"valid_from,omitempty"`
	ValidTo              *time.Time     `gorm:"column:valid_to;type:date" json:"valid_to,omitempty"`
	Metadata             JSONB          `gorm:"column:metadata;type:jsonb" json:"metadata"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`

	// ParentCanonicalKey lets writers link a child to a parent upserted in the same batch.
	ParentCanonicalKey string `gorm:"-" json:"-"`
}

func (DimTerritory) TableName() string {
	return "silver.dim_territory"
}
