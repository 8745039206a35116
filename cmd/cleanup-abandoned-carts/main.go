package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/workflow"
	"github.com/joho/godotenv"
)

// cleanup-abandoned-carts deletes DRAFT sales (and their stock holds)
// older than the given age across all tenants.
//
// Dry-run (count only):
//   go run ./cmd/cleanup-abandoned-carts -age-hours=24 -dry-run
//
// Execute:
//   go run ./cmd/cleanup-abandoned-carts -age-hours=24
func main() {
	ageHours := flag.Int("age-hours", 24, "Delete draft sales older than this many hours")
	dryRun := flag.Bool("dry-run", false, "Count only (no writes)")
	flag.Parse()

	if *ageHours <= 0 {
		fmt.Fprintln(os.Stderr, "-age-hours must be positive")
		os.Exit(1)
	}

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	count, err := workflow.CleanupAbandonedCarts(ctx, config.GetLogger(), time.Duration(*ageHours)*time.Hour, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup failed: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Printf("would delete %d abandoned cart(s)\n", count)
	} else {
		fmt.Printf("deleted %d abandoned cart(s)\n", count)
	}
}
