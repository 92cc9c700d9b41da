package domain

import "time"

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
	ModeMixed   Mode = "mixed"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeOnline, ModeOffline, ModeMixed:
		return true
	}
	return false
}

// ModeChange is the audit record emitted for every mode switch.
type ModeChange struct {
	OldMode   Mode      `json:"old_mode"`
	NewMode   Mode      `json:"new_mode"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ModeMismatch is advisory: the server disagrees with the client's declared
// mode but the client decides whether to follow the suggestion.
type ModeMismatch struct {
	CurrentMode   Mode `json:"current_mode"`
	SuggestedMode Mode `json:"suggested_mode"`
	ServerMode    Mode `json:"server_mode"`
}
