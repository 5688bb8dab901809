package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/config"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/seeds"
)

// CLI flags
var (
	registryPath = flag.String("registry", "", "Connector registry YAML (default: <CONFIG_ROOT>/connectors.yml)")
	migrate      = flag.Bool("migrate", false, "Create the silver and ops tables first (development databases)")
	dryRun       = flag.Bool("dry-run", false, "Parse and diff only; no DB writes")
	advisoryKey  = flag.Int64("advisory-lock", 0, "Optional Postgres advisory lock key (e.g., 424242). 0 = disabled")
)

func main() {
	flag.Parse()

	s, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	if err := s.Validate(); err != nil {
		fatalf("config: %v", err)
	}
	log := logging.Setup(s.LogLevel)
	if *registryPath == "" {
		*registryPath = s.RegistryPath()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	d, err := db.Open(ctx, s.DatabaseURL, log)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	plan, err := seeds.SeedAll(ctx, d, seeds.Options{
		RegistryPath: *registryPath,
		Migrate:      *migrate,
		AdvisoryLock: *advisoryKey,
		DryRun:       *dryRun,
	}, log)
	if err != nil {
		fatalf("seed: %v", err)
	}
	if *dryRun {
		fmt.Printf("Dry run: %d entries, %d new, %d changed. No changes made.\n", len(plan.Entries), plan.Inserted, plan.Updated)
		return
	}
	fmt.Printf("Seeded %d registry entries (%d new, %d changed) from %s\n", len(plan.Entries), plan.Inserted, plan.Updated, *registryPath)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "seed: "+format+"\n", args...)
	os.Exit(1)
}
