package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Target is a downstream service that can receive routed text at its
// listen endpoint. Names are stored lowercased and looked up
// case-insensitively.
type Target struct {
	Name    string   `json:"name"`
	BaseURL string   `json:"base_url"`
	Phrases []string `json:"phrases"`
}

// ListenURL is the endpoint routed text is delivered to.
func (t Target) ListenURL() string {
	return strings.TrimRight(t.BaseURL, "/") + "/listen"
}

func (t Target) Validate() error {
	name := strings.TrimSpace(t.Name)
	if name == "" || utf8.RuneCountInString(name) > 32 {
		return errors.New("name must be 1-32 characters")
	}
	if len(t.BaseURL) < 4 {
		return errors.New("base_url is required")
	}
	return nil
}

// TextEvent is a single transcribed utterance from a microphone source.
type TextEvent struct {
	SourceID   string   `json:"source_id"`
	Room       string   `json:"room,omitempty"`
	TS         int64    `json:"ts"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (e TextEvent) Validate() error {
	if e.SourceID == "" || utf8.RuneCountInString(e.SourceID) > 64 {
		return errors.New("source_id must be 1-64 characters")
	}
	if utf8.RuneCountInString(e.Room) > 64 {
		return errors.New("room must be at most 64 characters")
	}
	if e.Text == "" || utf8.RuneCountInString(e.Text) > 500 {
		return errors.New("text must be 1-500 characters")
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	return nil
}

// Session binds one source to one target for a bounded stretch of time.
// At most one session exists per source id.
type Session struct {
	ID       string
	Target   string
	SourceID string
	Room     string
	LastTS   int64
}

// SessionSnapshot is what sessions look like on the wire.
type SessionSnapshot struct {
	ID         string `json:"id"`
	Target     string `json:"target"`
	SourceID   string `json:"source_id"`
	Room       string `json:"room,omitempty"`
	LastTS     int64  `json:"last_ts"`
	ExpiresInS int64  `json:"expires_in_s"`
}

// Route decision modes.
const (
	ModeIdle            = "idle"
	ModeSessionOpen     = "session_open"
	ModeSessionContinue = "session_continue"
	ModeSessionSwitch   = "session_switch"
	ModeSessionEnd      = "session_end"
)

// RouteDecision is the synchronous outcome of routing one TextEvent.
type RouteDecision struct {
	Handled   bool             `json:"handled"`
	RoutedTo  string           `json:"routed_to,omitempty"`
	Mode      string           `json:"mode"`
	Session   *SessionSnapshot `json:"session,omitempty"`
	Forwarded bool             `json:"forwarded"`
	Reason    string           `json:"reason,omitempty"`
}

// Outbound event modes.
const (
	OutboundTriggered  = "triggered"
	OutboundOpenListen = "open_listen"
)

// OutboundEvent is the payload delivered to a target's listen endpoint.
type OutboundEvent struct {
	EventID    string   `json:"event_id"`
	TS         int64    `json:"ts"`
	SourceID   string   `json:"source_id"`
	Room       string   `json:"room,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	Mode       string   `json:"mode"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Setting is a named operational value with a durable audit trail.
type Setting struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	UpdatedAt   string `json:"updated_at"`
	Description string `json:"description,omitempty"`
}

// SettingChange is one append-only audit row for a setting write.
type SettingChange struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	OldValue  *string `json:"old_value"`
	NewValue  string  `json:"new_value"`
	ChangedAt string  `json:"changed_at"`
	Source    string  `json:"source,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Config value types.
const (
	ConfigBool  = "bool"
	ConfigInt   = "int"
	ConfigFloat = "float"
	ConfigStr   = "str"
)

// ConfigSetting is a typed configuration value from a closed key set.
type ConfigSetting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// Listen modes the audio worker understands.
const (
	ListenInactive = "inactive"
	ListenTrigger  = "trigger"
	ListenActive   = "active"
)

// ValidateListenMode rejects anything outside the listen mode enum.
func ValidateListenMode(mode string) error {
	switch mode {
	case ListenInactive, ListenTrigger, ListenActive:
		return nil
	default:
		return fmt.Errorf("invalid listen_mode %q: must be one of inactive, trigger, active", mode)
	}
}
