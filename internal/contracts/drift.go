package contracts

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Column is one live column as the catalog reports it.
type Column struct {
	Name     string
	DataType string
	UDTName  string
}

// Catalog lists the live columns of a table. An absent table yields no
// columns and no error.
type Catalog interface {
	Columns(ctx context.Context, schema, table string) ([]Column, error)
}

// PostgresCatalog reads information_schema.columns.
type PostgresCatalog struct {
	DB *gorm.DB
}

func (c PostgresCatalog) Columns(ctx context.Context, schema, table string) ([]Column, error) {
	var rows []struct {
		ColumnName string
		DataType   string
		UdtName    string
	}
	err := c.DB.WithContext(ctx).Raw(`SELECT column_name, data_type, udt_name
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`, schema, table).Scan(&rows).Error
	if err != nil {
		return nil, db.Classify("read information_schema.columns", err)
	}
	out := make([]Column, len(rows))
	for i, r := range rows {
		out[i] = Column{Name: r.ColumnName, DataType: r.DataType, UDTName: r.UdtName}
	}
	return out, nil
}

var typeFamilies = map[string]string{
	"text": "text", "character varying": "text", "varchar": "text", "character": "text",
	"char": "text", "bpchar": "text", "name": "text", "citext": "text", "string": "text",
	"integer": "integer", "int": "integer", "int2": "integer", "int4": "integer", "int8": "integer",
	"smallint": "integer", "bigint": "integer", "serial": "integer", "bigserial": "integer",
	"numeric": "numeric", "decimal": "numeric", "real": "numeric", "double precision": "numeric",
	"float4": "numeric", "float8": "numeric", "float": "numeric",
	"boolean": "boolean", "bool": "boolean",
	"date": "date",
	"timestamp": "timestamp", "timestamptz": "timestamp",
	"timestamp with time zone": "timestamp", "timestamp without time zone": "timestamp",
	"json": "json", "jsonb": "json",
	"uuid": "uuid",
	"geometry": "geometry", "geography": "geometry",
	"array": "array",
}

// NormalizeType maps a declared or live type to its family. Unknown types
// are returned lowercased.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "_") {
		return "array"
	}
	if f, ok := typeFamilies[t]; ok {
		return f
	}
	return t
}

// LiveType normalizes a catalog column; user-defined types resolve through
// udt_name.
func LiveType(c Column) string {
	switch strings.ToUpper(c.DataType) {
	case "USER-DEFINED":
		return NormalizeType(c.UDTName)
	case "ARRAY":
		return "array"
	}
	return NormalizeType(c.DataType)
}

// Mismatch is a column whose live type differs from the contract.
type Mismatch struct {
	Column   string `json:"column"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ConnectorDrift is the comparison of one contract with the live table.
type ConnectorDrift struct {
	Connector      string     `json:"connector"`
	TargetTable    string     `json:"target_table"`
	TableExists    bool       `json:"table_exists"`
	MissingColumns []string   `json:"missing_required_columns"`
	TypeMismatches []Mismatch `json:"type_mismatches"`
}

// HasIssues reports whether the connector drifted.
func (d ConnectorDrift) HasIssues() bool {
	return !d.TableExists || len(d.MissingColumns) > 0 || len(d.TypeMismatches) > 0
}

// DriftReport is the outcome of CheckDrift.
type DriftReport struct {
	Connectors []ConnectorDrift `json:"connectors"`
	Checks     []ops.Check      `json:"checks"`
}

// SplitTable splits "schema.table", defaulting the schema to public.
func SplitTable(qualified string) (schema, table string) {
	if i := strings.IndexByte(qualified, '.'); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "public", qualified
}

// CheckDrift compares each active contract with the live catalog. Every
// connector gets its own checks; schema_drift_connectors_with_issues fails
// when more than maxWithIssues connectors drifted.
func CheckDrift(ctx context.Context, cat Catalog, contracts []models.SchemaContract, maxWithIssues int) (DriftReport, error) {
	var rep DriftReport
	withIssues := 0
	for _, c := range contracts {
		if c.Status != models.ContractActive {
			continue
		}
		schema, table := SplitTable(c.TargetTable)
		cols, err := cat.Columns(ctx, schema, table)
		if err != nil {
			return rep, err
		}
		d := compare(c, cols)
		rep.Connectors = append(rep.Connectors, d)
		rep.Checks = append(rep.Checks, driftChecks(d)...)
		if d.HasIssues() {
			withIssues++
		}
	}

	details := map[string]any{"contracts_checked": len(rep.Connectors)}
	if withIssues > maxWithIssues {
		rep.Checks = append(rep.Checks, ops.Fail("schema_drift_connectors_with_issues", withIssues, maxWithIssues, details))
	} else {
		rep.Checks = append(rep.Checks, ops.Pass("schema_drift_connectors_with_issues", withIssues, maxWithIssues, details))
	}
	return rep, nil
}

func compare(c models.SchemaContract, cols []Column) ConnectorDrift {
	d := ConnectorDrift{Connector: c.ConnectorName, TargetTable: c.TargetTable, TableExists: len(cols) > 0}
	if !d.TableExists {
		return d
	}
	live := make(map[string]string, len(cols))
	for _, col := range cols {
		live[strings.ToLower(col.Name)] = LiveType(col)
	}
	for _, req := range c.RequiredColumns {
		if _, ok := live[strings.ToLower(req)]; !ok {
			d.MissingColumns = append(d.MissingColumns, req)
		}
	}

	expected := map[string]string{}
	for col, t := range c.ColumnTypes.Map() {
		if s, ok := t.(string); ok {
			expected[col] = NormalizeType(s)
		}
	}
	names := make([]string, 0, len(expected))
	for col := range expected {
		names = append(names, col)
	}
	sort.Strings(names)
	for _, col := range names {
		actual, ok := live[strings.ToLower(col)]
		if !ok || actual == expected[col] {
			continue
		}
		d.TypeMismatches = append(d.TypeMismatches, Mismatch{Column: col, Expected: expected[col], Actual: actual})
	}
	return d
}

func driftChecks(d ConnectorDrift) []ops.Check {
	prefix := "schema_drift_" + d.Connector
	details := map[string]any{"target_table": d.TargetTable}
	if !d.TableExists {
		details["reason"] = "target table not found"
		return []ops.Check{ops.Fail(prefix+"_target_table", 0, 1, details)}
	}

	checks := []ops.Check{ops.Pass(prefix+"_target_table", 1, 1, details)}
	missing := map[string]any{"target_table": d.TargetTable, "columns": d.MissingColumns}
	if n := len(d.MissingColumns); n > 0 {
		checks = append(checks, ops.Fail(prefix+"_missing_required_columns", n, 0, missing))
	} else {
		checks = append(checks, ops.Pass(prefix+"_missing_required_columns", 0, 0, missing))
	}
	mismatches := map[string]any{"target_table": d.TargetTable, "columns": d.TypeMismatches}
	if n := len(d.TypeMismatches); n > 0 {
		checks = append(checks, ops.Fail(prefix+"_type_mismatch_columns", n, 0, mismatches))
	} else {
		checks = append(checks, ops.Pass(prefix+"_type_mismatch_columns", 0, 0, mismatches))
	}
	return checks
}
