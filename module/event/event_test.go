package event

import (
	"testing"

	"PPulse/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageCreated(t *testing.T) {
	raw := []byte(`{
		"kind": "message.created",
		"actor_id": "u1",
		"conversation_id": "c1",
		"message_id": "m1",
		"content_type": "text",
		"body": "hello",
		"extra_field_from_newer_client": true
	}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindMessageCreated, ev.Kind)
	assert.Equal(t, "u1", ev.ActorID)
	assert.Equal(t, "c1", ev.ConversationID)
	assert.Equal(t, ContentText, ev.ContentType)
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, "message", ev.Action())
}

func TestDecodeMissingRequiredField(t *testing.T) {
	raw := []byte(`{"kind":"message.created","actor_id":"u1","message_id":"m1","content_type":"text"}`)

	_, err := Decode(raw)
	require.Error(t, err)
	assert.True(t, errs.IsPrecondition(err))
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"reaction.added","actor_id":"u1"}`))
	require.Error(t, err)
	assert.False(t, errs.IsPrecondition(err))
}

func TestDecodePresencePing(t *testing.T) {
	ev, err := Decode([]byte(`{"kind":"presence.ping","user_id":"u1","session_id":"s1"}`))
	require.NoError(t, err)
	assert.Equal(t, "", ev.Action())

	_, err = Decode([]byte(`{"kind":"presence.ping","user_id":"u1"}`))
	require.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{`))
	require.Error(t, err)
}
