package warehouse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

const batchSize = 500

var (
	territoryUpdates = []string{
		"level", "parent_territory_id", "source_system", "source_entity_id", "ibge_geocode",
		"tse_zone", "tse_section", "name", "normalized_name", "uf", "municipality_ibge_code",
		"valid_from", "valid_to", "metadata", "updated_at",
	}
	indicatorUpdates        = []string{"indicator_name", "unit", "value", "updated_at"}
	electorateUpdates       = []string{"voters", "updated_at"}
	electionResultUpdates   = []string{"value", "updated_at"}
	socialProtectionUpdates = []string{
		"households_total", "people_total", "avg_income_per_capita",
		"poverty_households", "extreme_poverty_households", "updated_at",
	}
	socialAssistanceUpdates = []string{"cras_units", "creas_units", "centro_pop_units", "capacity_total", "updated_at"}
)

// Write upserts b in order territories then facts and reports per-table
// counts. It only writes; existing values are never compared.
func Write(tx *gorm.DB, b Batch) ([]TableCount, error) {
	var counts []TableCount
	if len(b.Territories) > 0 {
		n, err := upsertTerritories(tx, b.Territories)
		if err != nil {
			return nil, err
		}
		counts = append(counts, TableCount{Table: models.DimTerritory{}.TableName(), Rows: n})
	}

	steps := []struct {
		table string
		run   func() (int64, error)
	}{
		{models.FactIndicator{}.TableName(), func() (int64, error) {
			rows := Dedupe(b.Indicators, func(r models.FactIndicator) string {
				return key(r.TerritoryID, r.Source, r.Dataset, r.IndicatorCode, r.Category, r.ReferencePeriod)
			})
			return upsert(tx, "fact_indicator", rows, models.IndicatorKey, indicatorUpdates)
		}},
		{models.FactElectorate{}.TableName(), func() (int64, error) {
			rows := Dedupe(b.Electorate, func(r models.FactElectorate) string {
				return key(r.TerritoryID, r.ReferenceYear, r.Sex, r.AgeRange, r.Education)
			})
			return upsert(tx, "fact_electorate", rows, models.ElectorateKey, electorateUpdates)
		}},
		{models.FactElectionResult{}.TableName(), func() (int64, error) {
			rows := Dedupe(b.ElectionResults, func(r models.FactElectionResult) string {
				return key(r.TerritoryID, r.ElectionYear, r.ElectionRound, r.Office, r.Metric)
			})
			return upsert(tx, "fact_election_result", rows, models.ElectionResultKey, electionResultUpdates)
		}},
		{models.FactSocialProtection{}.TableName(), func() (int64, error) {
			rows := Dedupe(b.SocialProtection, func(r models.FactSocialProtection) string {
				return key(r.TerritoryID, r.Source, r.Dataset, r.ReferencePeriod)
			})
			return upsert(tx, "fact_social_protection", rows, models.SocialFactKey, socialProtectionUpdates)
		}},
		{models.FactSocialAssistanceNetwork{}.TableName(), func() (int64, error) {
			rows := Dedupe(b.SocialAssistance, func(r models.FactSocialAssistanceNetwork) string {
				return key(r.TerritoryID, r.Source, r.Dataset, r.ReferencePeriod)
			})
			return upsert(tx, "fact_social_assistance_network", rows, models.SocialFactKey, socialAssistanceUpdates)
		}},
	}
	for _, s := range steps {
		n, err := s.run()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts = append(counts, TableCount{Table: s.table, Rows: n})
		}
	}
	return counts, nil
}

func upsert[T any](tx *gorm.DB, name string, rows []T, conflict, updates []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := make([]clause.Column, len(conflict))
	for i, c := range conflict {
		cols[i] = clause.Column{Name: c}
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(updates),
	}).CreateInBatches(&rows, batchSize).Error
	if err != nil {
		return 0, db.Classify("upsert "+name, err)
	}
	return int64(len(rows)), nil
}

// upsertTerritories writes coarser levels first so children can be linked
// to the ids their parents hold in the table.
func upsertTerritories(tx *gorm.DB, rows []models.DimTerritory) (int64, error) {
	rows = Dedupe(rows, func(r models.DimTerritory) string { return r.CanonicalKey })
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Level.Rank() < rows[j].Level.Rank() })

	ids := map[string]uuid.UUID{}
	var total int64
	for start := 0; start < len(rows); {
		rank := rows[start].Level.Rank()
		end := start
		for end < len(rows) && rows[end].Level.Rank() == rank {
			end++
		}
		group := rows[start:end]
		keys := make([]string, 0, len(group))
		for i := range group {
			if pk := group[i].ParentCanonicalKey; pk != "" && group[i].ParentTerritoryID == nil {
				id, err := parentID(tx, ids, pk)
				if err != nil {
					return 0, err
				}
				group[i].ParentTerritoryID = &id
			}
			keys = append(keys, group[i].CanonicalKey)
		}
		n, err := upsert(tx, "dim_territory", group, []string{"canonical_key"}, territoryUpdates)
		if err != nil {
			return 0, err
		}
		total += n
		if err := loadIDs(tx, keys, ids); err != nil {
			return 0, err
		}
		start = end
	}
	return total, nil
}

func parentID(tx *gorm.DB, ids map[string]uuid.UUID, canonicalKey string) (uuid.UUID, error) {
	if id, ok := ids[canonicalKey]; ok {
		return id, nil
	}
	if err := loadIDs(tx, []string{canonicalKey}, ids); err != nil {
		return uuid.Nil, err
	}
	id, ok := ids[canonicalKey]
	if !ok {
		return uuid.Nil, db.Classify("link territory parent", fmt.Errorf("parent %s not found", canonicalKey))
	}
	return id, nil
}

func loadIDs(tx *gorm.DB, keys []string, into map[string]uuid.UUID) error {
	var found []struct {
		TerritoryID  uuid.UUID
		CanonicalKey string
	}
	err := tx.Model(&models.DimTerritory{}).
		Select("territory_id", "canonical_key").
		Where("canonical_key IN ?", keys).
		Scan(&found).Error
	if err != nil {
		return db.Classify("load territory ids", err)
	}
	for _, f := range found {
		into[f.CanonicalKey] = f.TerritoryID
	}
	return nil
}

// Dedupe keeps the last row per key, preserving first-seen order. Postgres
// rejects an upsert statement that touches the same key twice.
func Dedupe[T any](rows []T, keyOf func(T) string) []T {
	if len(rows) < 2 {
		return rows
	}
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := keyOf(r)
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, "\x1f")
}
