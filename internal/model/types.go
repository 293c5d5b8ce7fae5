package model

import "time"

// ActionKind classifies the clipboard/input action reported by an extension.
type ActionKind string

const (
	ActionCopy    ActionKind = "copy"
	ActionPaste   ActionKind = "paste"
	ActionLogin   ActionKind = "login"
	ActionUnknown ActionKind = "unknown"
)

// NormalizeAction coerces a raw action string to a known ActionKind.
func NormalizeAction(s string) ActionKind {
	switch ActionKind(s) {
	case ActionCopy, ActionPaste, ActionLogin:
		return ActionKind(s)
	default:
		return ActionUnknown
	}
}

// ClipboardEvent is one clipboard/input action observed by an extension.
// ContentHash is a one-way digest; the raw snippet is stripped at ingestion
// and never stored.
type ClipboardEvent struct {
	Timestamp         time.Time
	ContentHash       string
	Action            ActionKind
	SourceExtensionID string
	Page              string
}

// NetworkEvent is one outbound request observed at the traffic inspection
// point. Read-only once created.
type NetworkEvent struct {
	Host        string
	BodyPreview string
	Timestamp   time.Time
}

// ClipboardRef labels the clipboard context attached to a correlation.
type ClipboardRef struct {
	Page   string `json:"page"`
	Source string `json:"source,omitempty"`
}

// Correlation is the match payload carried on a correlated proxy event.
type Correlation struct {
	Confidence float64      `json:"confidence"`
	Clipboard  ClipboardRef `json:"clipboard"`
}

// CorrelationResult is derived per network event, never stored.
type CorrelationResult struct {
	Matched     bool
	Confidence  float64
	Correlation *Correlation
}

// ActionRequest is one operator command against the enforcement side.
type ActionRequest struct {
	Action      string `json:"action"`
	Domain      string `json:"domain,omitempty"`
	ExtensionID string `json:"extensionId,omitempty"`
}

// ActionResponse acknowledges an operator command.
type ActionResponse struct {
	OK bool `json:"ok"`
}

// Operator command actions accepted by the /action endpoint.
const (
	ActionBlockDomain    = "block-domain"
	ActionBlockExtension = "block-extension"
	ActionUnblockDomain  = "unblock-domain"
)

// ToMillis converts a time to epoch milliseconds, the wire timestamp unit.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis converts an epoch-milliseconds wire timestamp to a time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
