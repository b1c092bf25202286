package presence

import "time"

type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Record is the real-time presence value kept in the ephemeral store.
// ActiveContextID points at the conversation the user has in the foreground;
// the fan-out engine suppresses pushes for that conversation.
type Record struct {
	State           State     `json:"state"`
	LastChangedAt   time.Time `json:"last_changed_at"`
	ActiveContextID string    `json:"active_context_id,omitempty"`
	Background      bool      `json:"background,omitempty"`
}

func (r Record) Online() bool { return r.State == StateOnline }

// Change is one observed mutation of a user's Record.
type Change struct {
	UserID string `json:"user_id"`
	Record Record `json:"record"`
}
