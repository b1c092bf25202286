package natsx

import (
	"context"
	"time"

	"PPulse/logger"

	"go.uber.org/zap"
)

// Message is the unified payload handed to handlers.
type Message struct {
	Subject string
	Data    []byte
}

// Handler processes one message; a returned error is logged by the chain.
type Handler func(ctx context.Context, msg Message) error

// Middleware wraps handlers (logging, recovery, metrics).
type Middleware func(Handler) Handler

// Chain composes middlewares right to left.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WithRecovery keeps a panicking handler from killing the subscription.
func WithRecovery() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("subject", msg.Subject), zap.Any("panic", r))
				}
			}()
			return next(ctx, msg)
		}
	}
}

// WithLogging logs failures with subject context.
func WithLogging() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			start := time.Now()
			err := next(ctx, msg)
			if err != nil {
				logger.Warn("handler failed",
					zap.String("subject", msg.Subject),
					zap.Duration("took", time.Since(start)),
					zap.Error(err))
			}
			return err
		}
	}
}
