package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"PPulse/logger"
	"PPulse/module/presence"
	redis2 "PPulse/service/storage/redis"
	"PPulse/tools/errs"
	"PPulse/tools/safe"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// presence key: im:presence:<user>, value is the JSON Record. Every write is
// also published on presenceChannel so watchers see it without polling. The
// key carries a TTL as a backstop; the disconnect registry is the primary
// offline path.
const presenceChannel = "im:presence:events"

func presenceKey(user string) string { return "im:presence:" + user }

// PresenceKeyPrefix / TypingKeyPrefix / RateKeyPrefix are the ephemeral
// footprints of one user, enumerated by the purge planner.
func PresenceKeyPrefix(user string) string { return "im:presence:" + user }
func TypingKeyPrefix(user string) string   { return "im:typing:" + user + ":" }
func RateKeyPrefix(user string) string     { return "im:rl:" + user + ":" }

// Presence implements presence.KV on redis.
type Presence struct {
	TTL time.Duration // record backstop TTL; 0 means no expiry
}

func (p Presence) Get(ctx context.Context, userID string) (*presence.Record, error) {
	rdb := redis2.Client()
	if rdb == nil {
		return nil, errs.New("redis not initialized")
	}
	val, err := rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec presence.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, errs.WrapMsg(err, "corrupt presence record", "user", userID)
	}
	return &rec, nil
}

func (p Presence) Set(ctx context.Context, userID string, rec presence.Record) error {
	rdb := redis2.Client()
	if rdb == nil {
		return errs.New("redis not initialized")
	}
	raw, err := json.Marshal(presence.Change{UserID: userID, Record: rec})
	if err != nil {
		return err
	}
	recRaw, _ := json.Marshal(rec)
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(userID), recRaw, p.TTL)
		pipe.Publish(ctx, presenceChannel, raw)
		return nil
	})
	return err
}

// Watch subscribes to the event channel filtered to one user and delivers
// the current value first, so a new watcher never starts blind.
func (p Presence) Watch(ctx context.Context, userID string) (<-chan presence.Record, func(), error) {
	rdb := redis2.Client()
	if rdb == nil {
		return nil, nil, errs.New("redis not initialized")
	}
	ps := rdb.Subscribe(ctx, presenceChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan presence.Record, 64)
	cur, err := p.Get(ctx, userID)
	if err != nil {
		_ = ps.Close()
		return nil, nil, err
	}
	if cur != nil {
		out <- *cur
	}

	safe.Go("presence-kv-watch", func() {
		defer close(out)
		for msg := range ps.Channel() {
			var c presence.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				logger.Warn("bad presence event payload", zap.Error(err))
				continue
			}
			if c.UserID != userID {
				continue
			}
			select {
			case out <- c.Record:
			case <-ctx.Done():
				return
			}
		}
	})
	return out, func() { _ = ps.Close() }, nil
}

// WatchAll is the store-wide transition feed the reconciler's mirror loop
// consumes.
func (p Presence) WatchAll(ctx context.Context) (<-chan presence.Change, func(), error) {
	rdb := redis2.Client()
	if rdb == nil {
		return nil, nil, errs.New("redis not initialized")
	}
	ps := rdb.Subscribe(ctx, presenceChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan presence.Change, 256)
	safe.Go("presence-kv-watchall", func() {
		defer close(out)
		for msg := range ps.Channel() {
			var c presence.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				logger.Warn("bad presence event payload", zap.Error(err))
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	})
	return out, func() { _ = ps.Close() }, nil
}

// ===== disconnect registry =====

// The connection gateway owns the session lifecycle and calls SessionClosed
// when a socket drops; queued writes are flushed with a fresh timestamp.
// Presence keys have a single writer (the owning session), so the registry
// is keyed session -> user -> record.

var (
	discMu  sync.Mutex
	discReg = map[string]map[string]presence.Record{}
)

func (p Presence) OnDisconnect(sessionID, userID string, rec presence.Record) {
	discMu.Lock()
	defer discMu.Unlock()
	if discReg[sessionID] == nil {
		discReg[sessionID] = map[string]presence.Record{}
	}
	discReg[sessionID][userID] = rec
}

func (p Presence) CancelDisconnect(sessionID, userID string) {
	discMu.Lock()
	defer discMu.Unlock()
	if m := discReg[sessionID]; m != nil {
		delete(m, userID)
		if len(m) == 0 {
			delete(discReg, sessionID)
		}
	}
}

// SessionClosed flushes every write queued for the session. Flush failures
// are logged only; the record TTL converges the state eventually.
func (p Presence) SessionClosed(ctx context.Context, sessionID string) {
	discMu.Lock()
	queued := discReg[sessionID]
	delete(discReg, sessionID)
	discMu.Unlock()

	for userID, rec := range queued {
		rec.LastChangedAt = time.Now()
		rec.ActiveContextID = ""
		if err := p.Set(ctx, userID, rec); err != nil {
			logger.Warn("disconnect flush failed",
				zap.String("session", sessionID), zap.String("user", userID), zap.Error(err))
		}
	}
}
