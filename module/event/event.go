package event

import (
	"encoding/json"
	"time"

	"PPulse/tools/errs"
)

// Kind discriminates the closed set of event payloads this worker accepts.
// Unknown kinds are rejected at the boundary; unknown fields inside a known
// kind are ignored.
type Kind string

const (
	KindMessageCreated Kind = "message.created"
	KindCallCreated    Kind = "call.created"
	KindStatusUpdated  Kind = "status.updated"
	KindPresencePing   Kind = "presence.ping"
)

// ContentType of a message body. Media types never carry raw bytes into a
// notification payload, only a short label.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

// Event is the decoded tagged union. Only the fields required by the Kind are
// guaranteed to be set after Decode.
type Event struct {
	Kind Kind `json:"kind"`

	// message.created / call.created / status.updated
	ActorID        string `json:"actor_id"`
	ConversationID string `json:"conversation_id"`

	// message.created
	MessageID   string      `json:"message_id"`
	ContentType ContentType `json:"content_type"`
	Body        string      `json:"body"`

	// call.created
	CallID string `json:"call_id"`

	// status.updated
	StatusText string `json:"status_text"`

	// presence.ping
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	At time.Time `json:"at"`
}

// Decode parses a raw payload and validates the per-kind required fields.
// A missing required field is a contract violation upstream, not a condition
// to limp past.
func Decode(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errs.NewCodeError(errs.CodeBadEvent, "malformed event payload").WithDetail(err.Error())
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return &ev, nil
}

func (ev *Event) Validate() error {
	switch ev.Kind {
	case KindMessageCreated:
		if ev.ConversationID == "" || ev.ActorID == "" || ev.MessageID == "" {
			return errs.Precondition("message.created requires conversation_id, actor_id, message_id")
		}
		if ev.ContentType == "" {
			return errs.Precondition("message.created requires content_type")
		}
	case KindCallCreated:
		if ev.ConversationID == "" || ev.ActorID == "" || ev.CallID == "" {
			return errs.Precondition("call.created requires conversation_id, actor_id, call_id")
		}
	case KindStatusUpdated:
		if ev.ActorID == "" {
			return errs.Precondition("status.updated requires actor_id")
		}
	case KindPresencePing:
		if ev.UserID == "" || ev.SessionID == "" {
			return errs.Precondition("presence.ping requires user_id, session_id")
		}
	case "":
		return errs.Precondition("event kind missing")
	default:
		return errs.NewCodeError(errs.CodeUnknownKind, "unknown event kind").WithDetail(string(ev.Kind))
	}
	return nil
}

// Action maps an event to its admission-control action kind; empty means the
// event is not rate limited.
func (ev *Event) Action() string {
	switch ev.Kind {
	case KindMessageCreated:
		return "message"
	case KindCallCreated:
		return "call"
	default:
		return ""
	}
}
