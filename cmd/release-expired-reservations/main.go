package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"github.com/joho/godotenv"
)

// release-expired-reservations flips expired ACTIVE stock holds to
// RELEASED across all tenants and prints the count.
//
// Dry-run (count only):
//   go run ./cmd/release-expired-reservations -dry-run
//
// Execute:
//   go run ./cmd/release-expired-reservations
func main() {
	dryRun := flag.Bool("dry-run", false, "Count only (no writes)")
	verbose := flag.Bool("verbose", false, "Print details")
	flag.Parse()

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	count, err := models.ReleaseExpiredReservations(ctx, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "release failed: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		if *dryRun {
			fmt.Printf("would release %d expired reservation(s)\n", count)
		} else {
			fmt.Printf("released %d expired reservation(s)\n", count)
		}
	} else {
		fmt.Println(count)
	}
}
