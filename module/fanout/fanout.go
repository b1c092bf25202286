package fanout

import (
	"context"
	"sync"

	"PPulse/logger"
	"PPulse/module/event"
	"PPulse/tools/errs"
	"PPulse/tools/safe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// PushChunkSize is the provider's per-call maximum.
	PushChunkSize = 500
	// tokenFetchChunk bounds one durable-store multi-get.
	tokenFetchChunk = 100
	// suppressionProbes bounds concurrent presence reads.
	suppressionProbes = 16
	// maxBodyRunes bounds the notification body text.
	maxBodyRunes = 120
	// noiseThreshold: below this many chunk failures per event we stay quiet.
	noiseThreshold = 5
)

// Target is one resolved (recipient device, payload) pair. Transient, built
// per pass.
type Target struct {
	UserID string
	Token  string
	Body   string
	Data   map[string]string
}

// Report aggregates one delivery pass. Failed counts targets inside failed
// provider chunks; delivery stays best-effort either way.
type Report struct {
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
}

// Roster resolves who an event reaches. Participants returns one consistent
// snapshot that the whole pass reuses.
type Roster interface {
	Participants(ctx context.Context, conversationID string) (participants []string, botIDs []string, err error)
	Friends(ctx context.Context, userID string) ([]string, error)
}

// Presence is the suppression probe: the conversation a recipient currently
// has in the foreground, empty when none.
type Presence interface {
	ActiveContext(ctx context.Context, userID string) string
}

// Tokens multi-gets device tokens per user.
type Tokens interface {
	TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error)
}

// Pusher submits one chunk (at most PushChunkSize targets) and reports how
// many of them failed. Per-token granularity is not guaranteed.
type Pusher interface {
	SendChunk(ctx context.Context, targets []Target) (failed int, err error)
}

// Responder generates bot replies. It runs as an independent side effect of
// the event and never blocks or fails the push pass.
type Responder interface {
	Reply(ctx context.Context, ev *event.Event, botID string)
}

type Engine struct {
	roster    Roster
	presence  Presence
	tokens    Tokens
	pusher    Pusher
	responder Responder // optional
}

func NewEngine(roster Roster, pres Presence, tokens Tokens, pusher Pusher, responder Responder) *Engine {
	return &Engine{roster: roster, presence: pres, tokens: tokens, pusher: pusher, responder: responder}
}

// Deliver fans ev out to its recipient set. The returned error covers only
// the initial planning read (container missing/unreadable); everything past
// that point is best-effort and lands in the Report.
func (e *Engine) Deliver(ctx context.Context, ev *event.Event) (Report, error) {
	if err := ev.Validate(); err != nil {
		return Report{}, err
	}

	recipients, bots, err := e.resolveRecipients(ctx, ev)
	if err != nil {
		return Report{}, err
	}

	// Bot replies are phase two of the same event; kick them off before the
	// push pass so neither waits on the other.
	if ev.Kind == event.KindMessageCreated && e.responder != nil {
		for _, botID := range bots {
			id := botID
			safe.Go("bot-reply-"+id, func() { e.responder.Reply(ctx, ev, id) })
		}
	}

	recipients = e.suppress(ctx, ev, recipients)
	if len(recipients) == 0 {
		return Report{}, nil
	}

	tokens := e.fetchTokens(ctx, recipients)
	targets := buildTargets(ev, recipients, tokens)
	report := e.push(ctx, targets)

	if report.Failed > noiseThreshold {
		logger.Warn("fan-out partial failure",
			zap.String("kind", string(ev.Kind)),
			zap.Int("attempted", report.Attempted),
			zap.Int("failed", report.Failed))
	} else {
		logger.Debug("fan-out complete",
			zap.String("kind", string(ev.Kind)),
			zap.Int("attempted", report.Attempted),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

// resolveRecipients reads the roster once and excludes the actor and any
// automated participants from the push set.
func (e *Engine) resolveRecipients(ctx context.Context, ev *event.Event) (recipients, bots []string, err error) {
	switch ev.Kind {
	case event.KindStatusUpdated:
		friends, err := e.roster.Friends(ctx, ev.ActorID)
		if err != nil {
			return nil, nil, errs.WrapMsg(err, "resolve friends", "actor", ev.ActorID)
		}
		return exclude(friends, ev.ActorID, nil), nil, nil
	default:
		parts, bots, err := e.roster.Participants(ctx, ev.ConversationID)
		if err != nil {
			return nil, nil, errs.WrapMsg(err, "resolve participants", "conversation", ev.ConversationID)
		}
		botSet := make(map[string]bool, len(bots))
		for _, b := range bots {
			botSet[b] = true
		}
		return exclude(parts, ev.ActorID, botSet), bots, nil
	}
}

func exclude(users []string, actor string, drop map[string]bool) []string {
	out := make([]string, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u == actor || seen[u] || drop[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// suppress removes recipients already viewing the event's conversation; they
// get the content over the live subscription they hold, a push would only
// duplicate it. Only message events are suppressed.
func (e *Engine) suppress(ctx context.Context, ev *event.Event, recipients []string) []string {
	if ev.Kind != event.KindMessageCreated || len(recipients) == 0 {
		return recipients
	}

	keep := make([]string, len(recipients))
	var g errgroup.Group
	g.SetLimit(suppressionProbes)
	for i, uid := range recipients {
		i, uid := i, uid
		g.Go(func() error {
			if e.presence.ActiveContext(ctx, uid) != ev.ConversationID {
				keep[i] = uid
			}
			return nil
		})
	}
	_ = g.Wait()

	out := keep[:0]
	for _, u := range keep {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// fetchTokens multi-gets device tokens in store-sized chunks, chunks running
// concurrently. A failed chunk drops its recipients from this pass only.
func (e *Engine) fetchTokens(ctx context.Context, recipients []string) map[string][]string {
	merged := make(map[string][]string, len(recipients))
	var mu sync.Mutex
	var g errgroup.Group

	for start := 0; start < len(recipients); start += tokenFetchChunk {
		end := start + tokenFetchChunk
		if end > len(recipients) {
			end = len(recipients)
		}
		chunk := recipients[start:end]
		g.Go(func() error {
			m, err := e.tokens.TokensForUsers(ctx, chunk)
			if err != nil {
				logger.Warn("token fetch chunk failed",
					zap.Int("size", len(chunk)), zap.Error(err))
				return nil
			}
			mu.Lock()
			for uid, toks := range m {
				merged[uid] = toks
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return merged
}

func buildTargets(ev *event.Event, recipients []string, tokens map[string][]string) []Target {
	body := payloadBody(ev)
	data := payloadData(ev)

	var targets []Target
	for _, uid := range recipients {
		for _, tok := range tokens[uid] {
			targets = append(targets, Target{UserID: uid, Token: tok, Body: body, Data: data})
		}
	}
	return targets
}

// push submits targets in provider-sized chunks. Chunks run concurrently and
// are fault-isolated: one failing chunk never aborts the rest.
func (e *Engine) push(ctx context.Context, targets []Target) Report {
	if len(targets) == 0 {
		return Report{}
	}

	var mu sync.Mutex
	report := Report{Attempted: len(targets)}
	var g errgroup.Group

	for start := 0; start < len(targets); start += PushChunkSize {
		end := start + PushChunkSize
		if end > len(targets) {
			end = len(targets)
		}
		chunk := targets[start:end]
		g.Go(func() error {
			failed, err := e.pusher.SendChunk(ctx, chunk)
			if err != nil {
				logger.Warn("push chunk failed", zap.Int("size", len(chunk)), zap.Error(err))
				failed = len(chunk)
			}
			mu.Lock()
			report.Failed += failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report
}
