// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "webhook payload archive", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return archiver.Upload(ctx, eventID, payload)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "billing stats backfill", time.Minute)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return aggregator.AggregateBillingStatsDaily(ctx, day)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, days, 4, "billing stats backfill", time.Minute,
//		func(ctx context.Context, day time.Time) error {
//			return aggregator.AggregateBillingStatsDaily(ctx, day)
//		})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Webhook payload archival, billing stats backfill, usage counter updates
//
// # Related Packages
//
//   - pkg/billing: Uses SafeGo for payload archival
//   - pkg/reports: Uses Batch for rollup backfill
package async
