// Package async provides panic-safe goroutine helpers for the few background
// chores the server runs, such as pruning idle rate-limit buckets.
//
//	async.Every(ctx, time.Minute, "ratelimit cleanup", func(ctx context.Context) {
//		limiter.Cleanup()
//	})
package async
