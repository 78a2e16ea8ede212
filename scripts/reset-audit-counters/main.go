// Monthly billing tick: zeroes audit counters for users whose billing
// period started before the current month and re-anchors their period.
// Run from cron at month rollover; safe to re-run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sitegauge/sitegauge/internal/repository"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		boundary    = flag.String("boundary", "", "Period boundary as YYYY-MM-DD (defaults to the first of the current month, UTC)")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	at := monthStart(time.Now().UTC())
	if *boundary != "" {
		parsed, err := time.Parse("2006-01-02", *boundary)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid boundary:", err)
			os.Exit(1)
		}
		at = parsed.UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	reset, err := repo.ResetAuditCountsBefore(ctx, at)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reset audit counters:", err)
		os.Exit(1)
	}

	fmt.Printf("reset %d account(s) to period %s\n", reset, at.Format("2006-01-02"))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
