package gate

import (
	"context"
	"time"

	"PPulse/logger"
	"PPulse/tools/errs"

	"go.uber.org/zap"
)

// Window is one sliding-window counter for an (actor, action) pair.
type Window struct {
	Count             int   `json:"count"`
	WindowStartMillis int64 `json:"window_start_millis"`
}

// ErrContention is returned by a WindowStore when its optimistic retries are
// exhausted under concurrent writers.
var ErrContention = errs.New("rate window contention")

// WindowStore performs the atomic read-modify-write the limiter depends on.
// fn sees the current window (zero value when absent) and returns the next
// value plus write=true, or write=false to abort with nothing written.
// Implementations must be atomic with respect to concurrent callers on the
// same key; a plain read-then-write is not acceptable here.
type WindowStore interface {
	Mutate(ctx context.Context, key string, fn func(w Window) (next Window, write bool)) error
}

// Rule is the admission budget for one action kind.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Limiter struct {
	store WindowStore
	rules map[string]Rule
	now   func() time.Time
}

func NewLimiter(store WindowStore, rules map[string]Rule) *Limiter {
	return &Limiter{store: store, rules: rules, now: time.Now}
}

func windowKey(actorID, action string) string {
	return "im:rl:" + actorID + ":" + action
}

// TryConsume reports whether actorID may perform action under the given
// budget. A denied call consumes no quota. On store failure the answer is
// deny: an unreliable counter failing open is an abuse vector.
func (l *Limiter) TryConsume(ctx context.Context, actorID, action string, limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return false
	}

	allowed := false
	err := l.store.Mutate(ctx, windowKey(actorID, action), func(w Window) (Window, bool) {
		nowMS := l.now().UnixMilli()
		if w.WindowStartMillis == 0 || nowMS-w.WindowStartMillis > window.Milliseconds() {
			allowed = true
			return Window{Count: 1, WindowStartMillis: nowMS}, true
		}
		if w.Count >= limit {
			allowed = false
			return w, false
		}
		allowed = true
		w.Count++
		return w, true
	})
	if err != nil {
		// fail closed for abuse-sensitive actions
		logger.Warn("rate window mutate failed, denying",
			zap.String("actor", actorID), zap.String("action", action), zap.Error(err))
		return false
	}
	return allowed
}

// Allow applies the configured rule for action; unknown actions are denied.
func (l *Limiter) Allow(ctx context.Context, actorID, action string) bool {
	rule, ok := l.rules[action]
	if !ok {
		logger.Warn("no admission rule for action, denying", zap.String("action", action))
		return false
	}
	return l.TryConsume(ctx, actorID, action, rule.Limit, rule.Window)
}
