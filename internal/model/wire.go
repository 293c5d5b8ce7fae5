// Package model defines the core event types and the tagged wire schema
// shared by the enforcement side and dashboard subscribers. The wire codec
// tolerates the historical payload shapes still emitted by older producers;
// compatibility handling lives here, at the boundary, so the rest of the
// system only ever sees the canonical types.
package model

import (
	"encoding/json"
	"fmt"
)

// MessageType tags a wire message.
type MessageType string

const (
	MsgExtensionEvent MessageType = "extension-event"
	MsgProxyEvent     MessageType = "proxy-event"
	MsgBlockedAttempt MessageType = "blocked-attempt"
	MsgBlockedDomain  MessageType = "blocked-domain"
)

// Message is one wire message on the subscriber channel. Exactly the fields
// relevant to its Type are set.
type Message struct {
	Type        MessageType
	Clipboard   *ClipboardEvent
	Network     *NetworkEvent
	Correlation *Correlation
	Domain      string
}

// clipboardWire is the canonical JSON shape for a clipboard event.
type clipboardWire struct {
	TS          int64  `json:"ts"`
	SnippetHash string `json:"snippetHash,omitempty"`
	Action      string `json:"action,omitempty"`
	Source      string `json:"source,omitempty"`
	Page        string `json:"page,omitempty"`
}

// networkWire is the canonical JSON shape for a network event.
type networkWire struct {
	Host        string `json:"host"`
	BodyPreview string `json:"bodyPreview,omitempty"`
	TS          int64  `json:"ts"`
}

type messageWire struct {
	Type        MessageType     `json:"type"`
	Evt         *clipboardWire  `json:"evt,omitempty"`
	PEvent      *networkWire    `json:"pEvent,omitempty"`
	Correlation *Correlation    `json:"correlation,omitempty"`
	Domain      string          `json:"domain,omitempty"`
	Event       *networkWire    `json:"event,omitempty"`      // legacy alias for pEvent
	Correlated  json.RawMessage `json:"correlated,omitempty"` // legacy bool form
}

func clipboardToWire(ev *ClipboardEvent) *clipboardWire {
	if ev == nil {
		return nil
	}
	return &clipboardWire{
		TS:          ToMillis(ev.Timestamp),
		SnippetHash: ev.ContentHash,
		Action:      string(ev.Action),
		Source:      ev.SourceExtensionID,
		Page:        ev.Page,
	}
}

func clipboardFromWire(w *clipboardWire) *ClipboardEvent {
	if w == nil {
		return nil
	}
	return &ClipboardEvent{
		Timestamp:         FromMillis(w.TS),
		ContentHash:       w.SnippetHash,
		Action:            NormalizeAction(w.Action),
		SourceExtensionID: w.Source,
		Page:              w.Page,
	}
}

func networkToWire(ev *NetworkEvent) *networkWire {
	if ev == nil {
		return nil
	}
	return &networkWire{
		Host:        ev.Host,
		BodyPreview: ev.BodyPreview,
		TS:          ToMillis(ev.Timestamp),
	}
}

func networkFromWire(w *networkWire) *NetworkEvent {
	if w == nil {
		return nil
	}
	return &NetworkEvent{
		Host:        w.Host,
		BodyPreview: w.BodyPreview,
		Timestamp:   FromMillis(w.TS),
	}
}

// MarshalJSON emits the canonical shape for the message's tag.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageWire{
		Type:        m.Type,
		Evt:         clipboardToWire(m.Clipboard),
		PEvent:      networkToWire(m.Network),
		Correlation: m.Correlation,
		Domain:      m.Domain,
	})
}

// DecodeMessage parses a wire message, accepting both the canonical shape
// and the legacy variants for proxy events: `event` in place of `pEvent`,
// and a bare `correlated: true` bool in place of a correlation object. The
// legacy bool maps to the explicit-correlation confidence with an unknown
// page, matching what downstream consumers have always synthesized.
func DecodeMessage(data []byte) (Message, error) {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if w.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type tag")
	}

	msg := Message{
		Type:        w.Type,
		Clipboard:   clipboardFromWire(w.Evt),
		Correlation: w.Correlation,
		Domain:      w.Domain,
	}

	pe := w.PEvent
	if pe == nil {
		pe = w.Event
	}
	msg.Network = networkFromWire(pe)

	if msg.Correlation == nil && len(w.Correlated) > 0 {
		var correlated bool
		if err := json.Unmarshal(w.Correlated, &correlated); err == nil && correlated {
			msg.Correlation = &Correlation{
				Confidence: LegacyCorrelatedConfidence,
				Clipboard:  ClipboardRef{Page: "unknown"},
			}
		}
	}

	return msg, nil
}

// LegacyCorrelatedConfidence is assigned when a legacy producer reports only
// `correlated: true` with no confidence of its own.
const LegacyCorrelatedConfidence = 0.9

// clipboardPayload is the tolerant ingestion shape for extension reports.
// Older extensions send the action under `type` and may include the raw
// snippet; newer ones pre-hash and label the page.
type clipboardPayload struct {
	Type        string `json:"type"`
	Action      string `json:"action"`
	Snippet     string `json:"snippet"`
	SnippetHash string `json:"snippetHash"`
	Source      string `json:"source"`
	ExtensionID string `json:"extensionId"`
	Page        string `json:"page"`
	TS          int64  `json:"ts"`
}

// DecodeClipboardPayload parses a raw extension report. It returns the
// event and, separately, any literal snippet the producer included so the
// caller can digest and discard it. The event's ContentHash is only set
// here when the producer pre-hashed.
func DecodeClipboardPayload(data []byte) (ClipboardEvent, string, error) {
	var p clipboardPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ClipboardEvent{}, "", fmt.Errorf("decode clipboard payload: %w", err)
	}

	action := p.Action
	if action == "" {
		action = p.Type
	}
	source := p.ExtensionID
	if source == "" {
		source = p.Source
	}

	return ClipboardEvent{
		Timestamp:         FromMillis(p.TS),
		ContentHash:       p.SnippetHash,
		Action:            NormalizeAction(action),
		SourceExtensionID: source,
		Page:              p.Page,
	}, p.Snippet, nil
}
