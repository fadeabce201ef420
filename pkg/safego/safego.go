package safego

import (
	"context"

	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery. A panicking goroutine logs
// the panic value and exits cleanly instead of taking the process down.
// Used for fire-and-forget work: memory write-back, safety alerts,
// notification delivery.
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}

// GoCtx is Go for functions that take a context. The returned channel is
// closed when the goroutine finishes, so callers that need a join point
// (the orchestrator waiting on the safety monitor) can select on it.
func GoCtx(ctx context.Context, logger *zap.Logger, name string, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn(ctx)
	}()
	return done
}
