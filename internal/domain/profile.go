package domain

import "time"

// Preferences holds device-scoped user preferences mirrored alongside the
// remote profile row.
type Preferences struct {
	Language           string `json:"language"`
	Theme              string `json:"theme"`
	AutoTranslate      bool   `json:"auto_translate"`
	DefaultDubLanguage string `json:"default_dub_language"`
}

// DefaultPreferences returns the preference set applied before any user choice.
func DefaultPreferences() Preferences {
	return Preferences{
		Language:           "en",
		Theme:              "light",
		AutoTranslate:      false,
		DefaultDubLanguage: "en",
	}
}

// ProfileSnapshot is the canonical per-account record fetched from the backend.
// FetchedAt stamps when the snapshot was read so stale responses can be
// rejected during reconciliation.
type ProfileSnapshot struct {
	AccountID    string       `json:"account_id"`
	IsVIP        bool         `json:"is_vip"`
	VIPExpiry    *time.Time   `json:"vip_expiry,omitempty"`
	TCoinBalance int64        `json:"tcoin_balance"`
	AIUsage      int          `json:"ai_usage"`
	Preferences  *Preferences `json:"preferences,omitempty"`
	FetchedAt    time.Time    `json:"fetched_at"`
}
