package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/config"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
)

func main() {
	s, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(os.Args) > 1 {
		s.MunicipalityIBGECode = os.Args[1]
	}
	if err := s.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := db.Open(ctx, s.DatabaseURL, logging.New(os.Stderr, s.LogLevel))
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close()

	m, err := territory.ResolveMunicipality(ctx, d, s.MunicipalityIBGECode)
	if err != nil {
		log.Fatalf("resolve: %v", err)
	}

	// Rows per level under the municipality, the municipality row included.
	type levelCount struct {
		Level string `json:"level"`
		Rows  int64  `json:"rows"`
	}
	var levels []levelCount
	query := `
		SELECT level, COUNT(*) AS rows
		FROM silver.dim_territory
		WHERE municipality_ibge_code = ?
		GROUP BY level
		ORDER BY level
	`
	if err := d.WithContext(ctx).Raw(query, m.IBGECode).Scan(&levels).Error; err != nil {
		log.Fatalf("Query error: %v", err)
	}

	out := struct {
		Municipality territory.Municipality `json:"municipality"`
		Levels       []levelCount           `json:"levels"`
	}{m, levels}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Fprintf(os.Stderr, "%s/%s resolved to %s\n", m.Name, m.UF, m.TerritoryID)
}
