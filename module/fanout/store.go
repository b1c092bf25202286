package fanout

import (
	"context"

	"PPulse/module/chat/model"
	"PPulse/tools/errs"
)

// Store backs the engine with the durable-store models. Participants and
// Friends are the read-once roster snapshots; tokens come pre-chunked from
// the engine.
type Store struct{}

func (Store) Participants(ctx context.Context, conversationID string) ([]string, []string, error) {
	conv, err := model.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, errs.NewCodeError(errs.CodeNotFound, "conversation not found").WithDetail(conversationID)
	}
	return conv.Participants, conv.BotIDs, nil
}

func (Store) Friends(ctx context.Context, userID string) ([]string, error) {
	return model.FriendIDs(ctx, userID)
}

func (Store) TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	devices, err := model.DevicesForUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(userIDs))
	for _, d := range devices {
		out[d.UserID] = append(out[d.UserID], d.Token)
	}
	return out, nil
}
