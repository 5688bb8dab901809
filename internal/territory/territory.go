// Package territory resolves territorial context from silver.dim_territory
// and derives deterministic territory identities.
package territory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/textnorm"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Namespace seeds the v5 ids of every territory row.
var Namespace = uuid.MustParse("6f1c3c52-8e0b-5b8e-9d7a-3121605a1b2c")

// Municipality is the resolved context every connector run is scoped to.
type Municipality struct {
	TerritoryID uuid.UUID `json:"territory_id"`
	Name        string    `json:"name"`
	UF          string    `json:"uf"`
	IBGECode    string    `json:"ibge_code"`
}

// ErrNotBootstrapped signals that the administrative bootstrap has not run.
var ErrNotBootstrapped = errors.New("municipality not found in silver.dim_territory; run ibge_admin_bootstrap first")

// ResolveMunicipality returns the most recently updated municipality row for code.
func ResolveMunicipality(ctx context.Context, db *gorm.DB, code string) (Municipality, error) {
	var row models.DimTerritory
	err := db.WithContext(ctx).
		Where("level = ? AND ibge_geocode = ?", models.LevelMunicipality, code).
		Order("updated_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Municipality{}, errs.E(errs.KindContextNotReady, "resolve municipality "+code, ErrNotBootstrapped)
	}
	if err != nil {
		return Municipality{}, errs.E(errs.KindWarehouse, "resolve municipality "+code, err)
	}
	return Municipality{TerritoryID: row.TerritoryID, Name: row.Name, UF: row.UF, IBGECode: code}, nil
}

// CanonicalKey is the stable identity of a territory: "<level>:<code>".
func CanonicalKey(level models.TerritoryLevel, code string) string {
	return fmt.Sprintf("%s:%s", level, code)
}

// DeterministicID derives the territory id from its canonical key.
func DeterministicID(canonicalKey string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(canonicalKey))
}

// NewRow fills the identity and naming fields of a dimension row.
func NewRow(level models.TerritoryLevel, code, name, municipalityCode, sourceSystem string) models.DimTerritory {
	key := CanonicalKey(level, code)
	return models.DimTerritory{
		TerritoryID:          DeterministicID(key),
		Level:                level,
		CanonicalKey:         key,
		SourceSystem:         sourceSystem,
		SourceEntityID:       code,
		Name:                 name,
		NormalizedName:       textnorm.Name(name),
		UF:                   UFFromIBGECode(municipalityCode),
		MunicipalityIBGECode: municipalityCode,
	}
}
