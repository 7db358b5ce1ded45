package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/arena/pkg/observability"
)

// Every calls fn once per interval until ctx is done. A panic in one tick is
// recovered and logged; the loop keeps going.
func Every(ctx context.Context, interval time.Duration, taskName string, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := run(ctx, func(ctx context.Context) error {
					fn(ctx)
					return nil
				})
				if err != nil {
					observability.GetLogger(ctx).
						WithField("task", taskName).
						WithError(err).
						Error("periodic task failed")
				}
			}
		}
	}()
}

// run invokes fn and converts a panic into an error.
func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
