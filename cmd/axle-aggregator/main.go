package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/axle/pkg/reports"
)

var (
	dbURL           = flag.String("db-url", getEnv("AXLE_POSTGRES_URL", getEnv("DATABASE_URL", "postgres://localhost/axle?sslmode=disable")), "PostgreSQL connection URL")
	dailySchedule   = flag.String("daily-schedule", "5 0 * * *", "Cron schedule for the daily billing rollup (default: 00:05 UTC)")
	purgeSchedule   = flag.String("purge-schedule", "30 0 * * *", "Cron schedule for revoked token purging (default: 00:30 UTC)")
	tokenRetention  = flag.Duration("token-retention", 30*24*time.Hour, "How long revoked tokens are kept before purging")
	runOnce         = flag.Bool("run-once", false, "Run the rollup once and exit (for testing)")
	rollupDate      = flag.String("date", "", "Date to roll up (YYYY-MM-DD format). If empty, rolls up yesterday. Only used with --run-once")
	backfillFrom    = flag.String("backfill-from", "", "Start date (YYYY-MM-DD) for a rollup backfill. Requires --backfill-to")
	backfillTo      = flag.String("backfill-to", "", "End date (YYYY-MM-DD) for a rollup backfill, inclusive")
	backfillWorkers = flag.Int("backfill-workers", 4, "Concurrent days while backfilling")
)

func main() {
	flag.Parse()

	// Connect to database
	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	aggregator := reports.NewAggregator(db)

	// Backfill mode (recompute a date range and exit)
	if *backfillFrom != "" || *backfillTo != "" {
		from, err := time.Parse("2006-01-02", *backfillFrom)
		if err != nil {
			log.Fatalf("Invalid --backfill-from date: %v", err)
		}
		to, err := time.Parse("2006-01-02", *backfillTo)
		if err != nil {
			log.Fatalf("Invalid --backfill-to date: %v", err)
		}

		log.Printf("Backfilling billing rollups from %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
		if errs := aggregator.Backfill(context.Background(), from, to, *backfillWorkers); len(errs) > 0 {
			for _, err := range errs {
				log.Printf("Backfill error: %v", err)
			}
			log.Fatalf("Backfill finished with %d failed days", len(errs))
		}

		log.Println("Backfill completed successfully")
		return
	}

	// Run once mode (for testing or cron-less deployments)
	if *runOnce {
		var date time.Time
		if *rollupDate != "" {
			date, err = time.Parse("2006-01-02", *rollupDate)
			if err != nil {
				log.Fatalf("Invalid date format: %v", err)
			}
		} else {
			// Default to yesterday
			date = time.Now().UTC().AddDate(0, 0, -1)
		}

		log.Printf("Running rollup for date: %s", date.Format("2006-01-02"))
		if err := runRollup(aggregator, date, *tokenRetention); err != nil {
			log.Fatalf("Rollup failed: %v", err)
		}

		log.Println("Rollup completed successfully")
		return
	}

	// Scheduled mode
	c := cron.New()

	// Daily billing rollup (aggregates yesterday's ledger at 00:05 UTC)
	_, err = c.AddFunc(*dailySchedule, func() {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		log.Printf("Starting daily billing rollup for %s", yesterday.Format("2006-01-02"))

		ctx := context.Background()
		if err := aggregator.AggregateBillingStatsDaily(ctx, yesterday); err != nil {
			log.Printf("Daily billing rollup failed: %v", err)
		} else {
			log.Println("Daily billing rollup completed successfully")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily rollup: %v", err)
	}

	// Revoked token purge (daily at 00:30 UTC)
	_, err = c.AddFunc(*purgeSchedule, func() {
		log.Println("Purging revoked API tokens")

		ctx := context.Background()
		purged, err := aggregator.PurgeRevokedTokens(ctx, *tokenRetention)
		if err != nil {
			log.Printf("Token purge failed: %v", err)
		} else {
			log.Printf("Purged %d revoked tokens", purged)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule token purge: %v", err)
	}

	// Start the cron scheduler
	c.Start()
	log.Println("Axle Billing Aggregator started")
	log.Printf("Daily rollup schedule: %s", *dailySchedule)
	log.Printf("Token purge schedule: %s", *purgeSchedule)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop the cron scheduler
	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Aggregator stopped")
}

func runRollup(aggregator *reports.Aggregator, date time.Time, tokenRetention time.Duration) error {
	ctx := context.Background()

	// Recompute the day's rollup row
	if err := aggregator.AggregateBillingStatsDaily(ctx, date); err != nil {
		log.Printf("Billing rollup failed: %v", err)
		return err
	}
	log.Println("✓ Billing stats aggregated")

	// Drop revoked tokens past their retention window
	purged, err := aggregator.PurgeRevokedTokens(ctx, tokenRetention)
	if err != nil {
		log.Printf("Token purge failed: %v", err)
		return err
	}
	log.Printf("✓ Purged %d revoked tokens", purged)

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
