package fanout

import (
	"unicode/utf8"

	"PPulse/module/event"
)

// payloadBody renders the notification text. Media content never leaks raw
// bytes into a push payload, only a short type label.
func payloadBody(ev *event.Event) string {
	switch ev.Kind {
	case event.KindCallCreated:
		return "Incoming call"
	case event.KindStatusUpdated:
		return truncate(ev.StatusText, maxBodyRunes)
	}

	switch ev.ContentType {
	case event.ContentText:
		return truncate(ev.Body, maxBodyRunes)
	case event.ContentImage:
		return "[Image]"
	case event.ContentAudio:
		return "[Voice]"
	case event.ContentVideo:
		return "[Video]"
	case event.ContentFile:
		return "[File]"
	default:
		return "[Message]"
	}
}

func payloadData(ev *event.Event) map[string]string {
	data := map[string]string{"kind": string(ev.Kind)}
	if ev.ConversationID != "" {
		data["conversation_id"] = ev.ConversationID
	}
	if ev.MessageID != "" {
		data["message_id"] = ev.MessageID
	}
	if ev.CallID != "" {
		data["call_id"] = ev.CallID
	}
	if ev.ActorID != "" {
		data["actor_id"] = ev.ActorID
	}
	return data
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes-1]) + "…"
}
