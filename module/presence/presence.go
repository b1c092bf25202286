package presence

import (
	"context"
	"sync"
	"time"

	"PPulse/logger"
	"PPulse/tools/safe"

	"go.uber.org/zap"
)

// KV is what the reconciler needs from the ephemeral store. Set must publish
// the new record to watchers; OnDisconnect queues a record the store writes
// by itself when the session's connection drops.
type KV interface {
	Get(ctx context.Context, userID string) (*Record, error)
	Set(ctx context.Context, userID string, rec Record) error
	OnDisconnect(sessionID, userID string, rec Record)
	CancelDisconnect(sessionID, userID string)
	Watch(ctx context.Context, userID string) (<-chan Record, func(), error)
	WatchAll(ctx context.Context) (<-chan Change, func(), error)
}

// Mirror is the durable, query-only index of presence. It is written on
// state flips plus a coarse heartbeat, never read on the real-time path.
type Mirror interface {
	SetOnline(ctx context.Context, userID string, online bool, at time.Time) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

type sub struct {
	refs   int
	last   *Record
	obs    map[int]chan Record
	nextID int
	cancel func()
}

// Reconciler mediates between the ephemeral store (authoritative for
// real-time reads) and the durable mirror. It owns the per-user subscription
// reference counts; nothing else touches them.
type Reconciler struct {
	kv        KV
	mirror    Mirror
	heartbeat time.Duration
	now       func() time.Time

	mu   sync.Mutex
	subs map[string]*sub
	last map[string]Record // last observed record per user, for flip gating
}

func NewReconciler(kv KV, mirror Mirror, heartbeat time.Duration) *Reconciler {
	return &Reconciler{
		kv:        kv,
		mirror:    mirror,
		heartbeat: heartbeat,
		now:       time.Now,
		subs:      make(map[string]*sub),
		last:      make(map[string]Record),
	}
}

// SetOnline marks the session's user online. The disconnect fallback is
// registered before the online write so a crash in between still converges
// to offline. Ping renewals of an already-online user rewrite the record
// as-is: the TTL refreshes, ActiveContextID and Background survive.
func (r *Reconciler) SetOnline(ctx context.Context, userID, sessionID string) error {
	r.kv.OnDisconnect(sessionID, userID, Record{State: StateOffline})
	rec, err := r.kv.Get(ctx, userID)
	if err != nil {
		return err
	}
	if rec != nil && rec.Online() {
		return r.kv.Set(ctx, userID, *rec)
	}
	return r.kv.Set(ctx, userID, Record{State: StateOnline, LastChangedAt: r.now()})
}

// SetOffline is the explicit teardown path.
func (r *Reconciler) SetOffline(ctx context.Context, userID, sessionID string) error {
	r.kv.CancelDisconnect(sessionID, userID)
	return r.kv.Set(ctx, userID, Record{State: StateOffline, LastChangedAt: r.now()})
}

// SetActiveContext records which conversation the user is looking at; empty
// clears it. State and Background are preserved.
func (r *Reconciler) SetActiveContext(ctx context.Context, userID, contextID string) error {
	rec, err := r.kv.Get(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{State: StateOnline, LastChangedAt: r.now()}
	}
	rec.ActiveContextID = contextID
	rec.Background = rec.Background && contextID == ""
	return r.kv.Set(ctx, userID, *rec)
}

// SetBackground flips the app-state flag that gates the mirror heartbeat.
func (r *Reconciler) SetBackground(ctx context.Context, userID string, background bool) error {
	rec, err := r.kv.Get(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.Background = background
	if background {
		rec.ActiveContextID = ""
	}
	return r.kv.Set(ctx, userID, *rec)
}

// GetPresence reads the real-time record; a user with no record is offline.
func (r *Reconciler) GetPresence(ctx context.Context, userID string) (Record, error) {
	rec, err := r.kv.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{State: StateOffline}, nil
	}
	return *rec, nil
}

// ActiveContext is the fan-out engine's suppression probe. Errors degrade to
// "no active context" so a flaky ephemeral read can only cause an extra
// push, never a lost one.
func (r *Reconciler) ActiveContext(ctx context.Context, userID string) string {
	rec, err := r.kv.Get(ctx, userID)
	if err != nil {
		logger.Warn("presence read failed, assuming no active context",
			zap.String("user", userID), zap.Error(err))
		return ""
	}
	if rec == nil || !rec.Online() {
		return ""
	}
	return rec.ActiveContextID
}

// Watch returns a stream of records for userID. Observers of the same user
// share one underlying store subscription; a new observer receives the last
// known value synchronously before live updates.
func (r *Reconciler) Watch(ctx context.Context, userID string) (<-chan Record, func(), error) {
	r.mu.Lock()
	e := r.subs[userID]
	if e == nil {
		upstream, cancel, err := r.kv.Watch(ctx, userID)
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}
		e = &sub{obs: make(map[int]chan Record), cancel: cancel}
		r.subs[userID] = e
		safe.Go("presence-watch-"+userID, func() { r.forward(userID, e, upstream) })
	}
	e.refs++
	id := e.nextID
	e.nextID++
	ch := make(chan Record, 64)
	e.obs[id] = ch
	if e.last != nil {
		ch <- *e.last
	}
	r.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(e.obs, id)
			e.refs--
			drop := e.refs == 0
			if drop {
				delete(r.subs, userID)
			}
			// closed under the lock so the mux never sends on a dead channel
			close(ch)
			r.mu.Unlock()
			if drop {
				e.cancel()
			}
		})
	}
	return ch, unsub, nil
}

func (r *Reconciler) forward(userID string, e *sub, upstream <-chan Record) {
	for rec := range upstream {
		r.mu.Lock()
		e.last = &rec
		for _, ch := range e.obs {
			select {
			case ch <- rec:
			default:
				// observer stopped draining: evict the oldest buffered value
				// so the newest state always lands
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- rec:
				default:
				}
			}
		}
		r.mu.Unlock()
	}
}

// Run drives the durable mirror: it consumes the store-wide transition feed,
// writes the mirror only when the online/offline state actually flips, and
// refreshes last_seen_at on a coarse ticker for online, foregrounded users.
// Mirror failures are logged and swallowed.
func (r *Reconciler) Run(ctx context.Context) error {
	feed, cancel, err := r.kv.WatchAll(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-feed:
			if !ok {
				return nil
			}
			r.onChange(ctx, c)
		case <-ticker.C:
			r.heartbeatPass(ctx)
		}
	}
}

func (r *Reconciler) onChange(ctx context.Context, c Change) {
	r.mu.Lock()
	prev, seen := r.last[c.UserID]
	r.last[c.UserID] = c.Record
	r.mu.Unlock()

	if seen && prev.State == c.Record.State {
		return // heartbeat or context change, no mirror write
	}
	at := c.Record.LastChangedAt
	if at.IsZero() {
		at = r.now()
	}
	if err := r.mirror.SetOnline(ctx, c.UserID, c.Record.Online(), at); err != nil {
		logger.Warn("presence mirror write failed",
			zap.String("user", c.UserID), zap.Error(err))
	}
}

func (r *Reconciler) heartbeatPass(ctx context.Context) {
	cutoff := r.now().Add(-r.heartbeat)
	r.mu.Lock()
	users := make([]string, 0)
	for uid, rec := range r.last {
		switch {
		case rec.Online() && !rec.Background:
			users = append(users, uid)
		case !rec.Online() && rec.LastChangedAt.Before(cutoff):
			// long-offline entry: the next online event is a flip either
			// way, nothing left to gate
			delete(r.last, uid)
		}
	}
	r.mu.Unlock()

	now := r.now()
	for _, uid := range users {
		if err := r.mirror.TouchLastSeen(ctx, uid, now); err != nil {
			logger.Warn("presence heartbeat write failed",
				zap.String("user", uid), zap.Error(err))
		}
	}
}
