package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FactIndicator is one numeric observation for a territory.
// Unique key: (territory_id, source, dataset, indicator_code, category, reference_period).
type FactIndicator struct {
	TerritoryID     uuid.UUID       `gorm:"type:uuid;column:territory_id;not null;uniqueIndex:uq_fact_indicator" json:"territory_id"`
	Source          string          `gorm:"column:source;not null;uniqueIndex:uq_fact_indicator" json:"source"`
	Dataset         string          `gorm:"column:dataset;not null;uniqueIndex:uq_fact_indicator" json:"dataset"`
	IndicatorCode   string          `gorm:"column:indicator_code;not null;uniqueIndex:uq_fact_indicator" json:"indicator_code"`
	IndicatorName   string          `gorm:"column:indicator_name;not null" json:"indicator_name"`
	Unit            string          `gorm:"column:unit" json:"unit"`
	Category        string          `gorm:"column:category;not null;default:'';uniqueIndex:uq_fact_indicator" json:"category"`
	Value           decimal.Decimal `gorm:"column:value;type:numeric" json:"value"`
	ReferencePeriod string          `gorm:"column:reference_period;not null;uniqueIndex:uq_fact_indicator" json:"reference_period"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (FactIndicator) TableName() string { return "silver.fact_indicator" }

// IndicatorKey lists the conflict columns of FactIndicator.
var IndicatorKey = []string{"territory_id", "source", "dataset", "indicator_code", "category", "reference_period"}

// FactElectorate is the voter profile of a territory for an election year.
// Unique key: (territory_id, reference_year, sex, age_range, education).
type FactElectorate struct {
	TerritoryID   uuid.UUID `gorm:"type:uuid;column:territory_id;not null;uniqueIndex:uq_fact_electorate" json:"territory_id"`
	ReferenceYear int       `gorm:"column:reference_year;not null;uniqueIndex:uq_fact_electorate" json:"reference_year"`
	Sex           string    `gorm:"column:sex;not null;uniqueIndex:uq_fact_electorate" json:"sex"`
	AgeRange      string    `gorm:"column:age_range;not null;uniqueIndex:uq_fact_electorate" json:"age_range"`
	Education     string    `gorm:"column:education;not null;uniqueIndex:uq_fact_electorate" json:"education"`
	Voters        int64     `gorm:"column:voters;not null" json:"voters"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (FactElectorate) TableName() string { return "silver.fact_electorate" }

var ElectorateKey = []string{"territory_id", "reference_year", "sex", "age_range", "education"}

// FactElectionResult is one metric of an election (votes, turnout, ...) for a territory.
// Unique key: (territory_id, election_year, election_round, office, metric).
type FactElectionResult struct {
	TerritoryID   uuid.UUID       `gorm:"type:uuid;column:territory_id;not null;uniqueIndex:uq_fact_election_result" json:"territory_id"`
	ElectionYear  int             `gorm:"column:election_year;not null;uniqueIndex:uq_fact_election_result" json:"election_year"`
	ElectionRound int             `gorm:"column:election_round;not null;uniqueIndex:uq_fact_election_result" json:"election_round"`
	Office        string          `gorm:"column:office;not null;uniqueIndex:uq_fact_election_result" json:"office"`
	Metric        string          `gorm:"column:metric;not null;uniqueIndex:uq_fact_election_result" json:"metric"`
	Value         decimal.Decimal `gorm:"column:value;type:numeric" json:"value"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (FactElectionResult) TableName() string { return "silver.fact_election_result" }

var ElectionResultKey = []string{"territory_id", "election_year", "election_round", "office", "metric"}

// FactSocialProtection aggregates the social-protection registry for a territory.
type FactSocialProtection struct {
	TerritoryID              uuid.UUID           `gorm:"type:uuid;column:territory_id;not null;uniqueIndex:uq_fact_social_protection" json:"territory_id"`
	Source                   string              `gorm:"column:source;not null;uniqueIndex:uq_fact_social_protection" json:"source"`
	Dataset                  string              `gorm:"column:dataset;not null;uniqueIndex:uq_fact_social_protection" json:"dataset"`
	ReferencePeriod          string              `gorm:"column:reference_period;not null;uniqueIndex:uq_fact_social_protection" json:"reference_period"`
	HouseholdsTotal          *int64              `gorm:"column:households_total" json:"households_total"`
	PeopleTotal              *int64              `gorm:"column:people_total" json:"people_total"`
	AvgIncomePerCapita       decimal.NullDecimal `gorm:"column:avg_income_per_capita;type:numeric" json:"avg_income_per_capita"`
	PovertyHouseholds        *int64              `gorm:"column:poverty_households" json:"poverty_households"`
	ExtremePovertyHouseholds *int64              `gorm:"column:extreme_poverty_households" json:"extreme_poverty_households"`
	UpdatedAt                time.Time           `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (FactSocialProtection) TableName() string { return "silver.fact_social_protection" }

var SocialFactKey = []string{"territory_id", "source", "dataset", "reference_period"}

// FactSocialAssistanceNetwork counts assistance-network units for a territory.
type FactSocialAssistanceNetwork struct {
	TerritoryID     uuid.UUID `gorm:"type:uuid;column:territory_id;not null;uniqueIndex:uq_fact_social_assistance" json:"territory_id"`
	Source          string    `gorm:"column:source;not null;uniqueIndex:uq_fact_social_assistance" json:"source"`
	Dataset         string    `gorm:"column:dataset;not null;uniqueIndex:uq_fact_social_assistance" json:"dataset"`
	ReferencePeriod string    `gorm:"column:reference_period;not null;uniqueIndex:uq_fact_social_assistance" json:"reference_period"`
	CRASUnits       *int64    `gorm:"column:cras_units" json:"cras_units"`
	CREASUnits      *int64    `gorm:"column:creas_units" json:"creas_units"`
	CentroPOPUnits  *int64    `gorm:"column:centro_pop_units" json:"centro_pop_units"`
	CapacityTotal   *int64    `gorm:"column:capacity_total" json:"capacity_total"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (FactSocialAssistanceNetwork) TableName() string { return "silver.fact_social_assistance_network" }
