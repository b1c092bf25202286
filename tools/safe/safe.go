package safe

import (
	"PPulse/logger"

	"go.uber.org/zap"
)

// Go starts a goroutine that recovers from panics so a single bad event
// handler cannot take the whole worker down.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.String("goroutine", name), zap.Any("panic", r))
			}
		}()
		f()
	}()
}

// Recover is the deferred form for callers that manage their own goroutines.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("scope", name), zap.Any("panic", r))
	}
}
