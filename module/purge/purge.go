package purge

import (
	"context"

	"PPulse/logger"
	"PPulse/tools/errs"

	"go.uber.org/zap"
)

// deleteChunk bounds one batch delete, with headroom under the store's
// batch-write maximum.
const deleteChunk = 400

// Match is one predicate on a collection: field equality, or array
// membership when Contains is set. Predicates are re-evaluated against the
// current state every run, which is what makes whole-plan retry safe.
type Match struct {
	Field    string
	Value    string
	Contains bool
}

// ConvRef is the planning snapshot of one affected container.
type ConvRef struct {
	ID               string
	ParticipantCount int
}

// Store is the slice of the durable store the orchestrator needs. IDs and
// AssetKeys are the read side; Delete and PullParticipant the write side.
type Store interface {
	ConversationsWith(ctx context.Context, userID string) ([]ConvRef, error)
	IDs(ctx context.Context, coll string, conds ...Match) ([]string, error)
	AssetKeys(ctx context.Context, coll string, conds ...Match) ([]string, error)
	Delete(ctx context.Context, coll string, ids []string) (int64, error)
	// PullParticipant removes userID from the container's roster and reports
	// how many participants remain; found=false when the container is gone.
	PullParticipant(ctx context.Context, convID, userID string) (remaining int, found bool, err error)
}

// KV deletes ephemeral keys under a prefix.
type KV interface {
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Blobs deletes storage assets. A missing key is not an error; prefix
// deletion may be partial.
type Blobs interface {
	DeleteKey(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Report summarizes one deletion pass. Partial means at least one step
// failed; re-invoking the same deletion is the recovery path.
type Report struct {
	CollectionsPurged   int   `json:"collections_purged"`
	ItemsDeleted        int64 `json:"items_deleted"`
	StorageAssetsPurged int   `json:"storage_assets_purged"`
	Partial             bool  `json:"partial"`
}

type Orchestrator struct {
	store Store
	kv    KV
	blobs Blobs

	// per-root ephemeral/asset footprints, injected so the orchestrator does
	// not hard-code store key layouts
	ephemeralPrefixes func(userID string) []string
	assetPrefixes     func(userID string) []string
}

func NewOrchestrator(store Store, kv KV, blobs Blobs,
	ephemeralPrefixes, assetPrefixes func(userID string) []string) *Orchestrator {
	return &Orchestrator{
		store:             store,
		kv:                kv,
		blobs:             blobs,
		ephemeralPrefixes: ephemeralPrefixes,
		assetPrefixes:     assetPrefixes,
	}
}

// DeleteUser removes userID and everything that structurally depends on it.
// Only a failure of the very first planning read aborts; any later failure
// marks the report Partial and the caller re-invokes.
func (o *Orchestrator) DeleteUser(ctx context.Context, userID string) (Report, error) {
	var rep Report

	// read-heavy pass: snapshot affected containers before mutating the
	// membership lists the snapshot query depends on
	convs, err := o.store.ConversationsWith(ctx, userID)
	if err != nil {
		return rep, errs.WrapMsg(err, "plan user deletion", "user", userID)
	}

	touched := map[string]bool{}

	for _, conv := range convs {
		if conv.ParticipantCount <= 1 {
			// sole remaining participant: the container goes with them
			o.purgeConversation(ctx, conv.ID, &rep, touched)
			continue
		}

		// shared container: authored content and membership only
		o.deleteAuthoredMessages(ctx, conv.ID, userID, &rep, touched)

		remaining, found, err := o.store.PullParticipant(ctx, conv.ID, userID)
		if err != nil {
			o.stepFailed(&rep, "pull participant", conv.ID, err)
			continue
		}
		if found {
			rep.ItemsDeleted++
			touched["conversation"] = true
		}
		if found && remaining == 0 {
			// nobody left after the pull: do not leave an orphan
			o.purgeConversation(ctx, conv.ID, &rep, touched)
		}
	}

	o.deleteWhere(ctx, "friend_request", &rep, touched, Match{Field: "from_user_id", Value: userID})
	o.deleteWhere(ctx, "friend_request", &rep, touched, Match{Field: "to_user_id", Value: userID})
	o.deleteWhere(ctx, "call_record", &rep, touched, Match{Field: "caller_id", Value: userID})
	o.deleteWhere(ctx, "call_record", &rep, touched, Match{Field: "callee_id", Value: userID})
	o.deleteWhere(ctx, "friendship", &rep, touched, Match{Field: "owner_user_id", Value: userID})
	o.deleteWhere(ctx, "friendship", &rep, touched, Match{Field: "friend_user_id", Value: userID})
	o.deleteWhere(ctx, "device", &rep, touched, Match{Field: "user_id", Value: userID})
	o.deleteWhere(ctx, "presence_mirror", &rep, touched, Match{Field: "user_id", Value: userID})

	for _, prefix := range o.ephemeralPrefixes(userID) {
		n, err := o.kv.DeletePrefix(ctx, prefix)
		rep.ItemsDeleted += n
		if err != nil {
			o.stepFailed(&rep, "ephemeral prefix", prefix, err)
		}
	}

	for _, prefix := range o.assetPrefixes(userID) {
		n, err := o.blobs.DeletePrefix(ctx, prefix)
		rep.StorageAssetsPurged += n
		if err != nil {
			// best-effort by contract, still worth the Partial mark so the
			// caller knows a re-run could reclaim more
			o.stepFailed(&rep, "asset prefix", prefix, err)
		}
	}

	rep.CollectionsPurged = len(touched)
	return rep, nil
}

// DeleteConversation removes one container with its full message history and
// media.
func (o *Orchestrator) DeleteConversation(ctx context.Context, convID string) (Report, error) {
	var rep Report

	ids, err := o.store.IDs(ctx, "conversation", Match{Field: "conversation_id", Value: convID})
	if err != nil {
		return rep, errs.WrapMsg(err, "plan conversation deletion", "conversation", convID)
	}
	if len(ids) == 0 {
		// already gone; a retry of a completed plan is a no-op
		return rep, nil
	}

	touched := map[string]bool{}
	o.purgeConversation(ctx, convID, &rep, touched)
	rep.CollectionsPurged = len(touched)
	return rep, nil
}

// purgeConversation removes a container's messages (assets first), then the
// container document itself. Every step re-reads current state, so partial
// progress is never repeated work.
func (o *Orchestrator) purgeConversation(ctx context.Context, convID string, rep *Report, touched map[string]bool) {
	o.deleteAssets(ctx, rep, Match{Field: "conversation_id", Value: convID})
	o.deleteWhere(ctx, "message", rep, touched, Match{Field: "conversation_id", Value: convID})
	o.deleteWhere(ctx, "conversation", rep, touched, Match{Field: "conversation_id", Value: convID})
}

func (o *Orchestrator) deleteAuthoredMessages(ctx context.Context, convID, userID string, rep *Report, touched map[string]bool) {
	conds := []Match{
		{Field: "conversation_id", Value: convID},
		{Field: "sender_id", Value: userID},
	}
	o.deleteAssets(ctx, rep, conds...)
	o.deleteWhere(ctx, "message", rep, touched, conds...)
}

// deleteAssets removes storage objects referenced by matching messages,
// before (and independently of) the message documents. Missing assets are
// fine: an earlier partial run may have gotten there first.
func (o *Orchestrator) deleteAssets(ctx context.Context, rep *Report, conds ...Match) {
	keys, err := o.store.AssetKeys(ctx, "message", conds...)
	if err != nil {
		o.stepFailed(rep, "list asset keys", "message", err)
		return
	}
	for _, key := range keys {
		if err := o.blobs.DeleteKey(ctx, key); err != nil {
			o.stepFailed(rep, "delete asset", key, err)
			continue
		}
		rep.StorageAssetsPurged++
	}
}

// deleteWhere deletes all matches in fixed-size chunks. Chunk failures are
// independent: the loop moves on and the next invocation of the whole plan
// picks up the remainder.
func (o *Orchestrator) deleteWhere(ctx context.Context, coll string, rep *Report, touched map[string]bool, conds ...Match) {
	ids, err := o.store.IDs(ctx, coll, conds...)
	if err != nil {
		o.stepFailed(rep, "list ids", coll, err)
		return
	}

	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		n, err := o.store.Delete(ctx, coll, ids[start:end])
		rep.ItemsDeleted += n
		if n > 0 {
			touched[coll] = true
		}
		if err != nil {
			o.stepFailed(rep, "delete chunk", coll, err)
		}
	}
}

func (o *Orchestrator) stepFailed(rep *Report, step, subject string, err error) {
	rep.Partial = true
	logger.Error("deletion step failed",
		zap.String("step", step), zap.String("subject", subject), zap.Error(err))
}
