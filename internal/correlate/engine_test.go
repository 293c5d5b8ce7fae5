package correlate

import (
	"testing"
	"time"

	"github.com/ecovive/leakwatch/internal/clipstore"
	"github.com/ecovive/leakwatch/internal/model"
)

var t0 = time.UnixMilli(1700000000000)

func netEv(host string, at time.Time) model.NetworkEvent {
	return model.NetworkEvent{Host: host, Timestamp: at}
}

func TestMatchInsideWindow(t *testing.T) {
	store := clipstore.New(5 * time.Second)
	store.Record(model.ClipboardEvent{Timestamp: t0, Action: model.ActionCopy}, t0)
	eng := New(store)

	at := t0.Add(2 * time.Second)
	res := eng.Evaluate(netEv("evil.io", at), nil, at)

	if !res.Matched {
		t.Fatal("expected match for request 2s after clipboard event")
	}
	if res.Confidence != ExplicitConfidence {
		t.Errorf("expected confidence %v, got %v", ExplicitConfidence, res.Confidence)
	}
	if res.Correlation == nil || res.Correlation.Clipboard.Page != "unknown" {
		t.Errorf("expected unknown page label, got %+v", res.Correlation)
	}
}

func TestNoMatchOutsideWindow(t *testing.T) {
	store := clipstore.New(5 * time.Second)
	store.Record(model.ClipboardEvent{Timestamp: t0}, t0)
	eng := New(store)

	at := t0.Add(6 * time.Second)
	res := eng.Evaluate(netEv("evil.io", at), nil, at)

	if res.Matched {
		t.Fatal("expected no match for request 6s after the only clipboard event")
	}
	if res.Correlation != nil {
		t.Errorf("unmatched result must carry no correlation, got %+v", res.Correlation)
	}
}

func TestNoMatchEmptyStore(t *testing.T) {
	eng := New(clipstore.New(0))
	if res := eng.Evaluate(netEv("evil.io", t0), nil, t0); res.Matched {
		t.Fatal("expected no match with empty store")
	}
}

func TestAttachedCorrelationTakesPrecedence(t *testing.T) {
	store := clipstore.New(5 * time.Second)
	store.Record(model.ClipboardEvent{Timestamp: t0}, t0)
	eng := New(store)

	attached := &model.Correlation{
		Confidence: 0.42,
		Clipboard:  model.ClipboardRef{Page: "docs.internal"},
	}
	res := eng.Evaluate(netEv("evil.io", t0), attached, t0)

	if !res.Matched {
		t.Fatal("expected match with attached correlation")
	}
	if res.Confidence != 0.42 {
		t.Errorf("attached confidence must win over fixed default, got %v", res.Confidence)
	}
	if res.Correlation.Clipboard.Page != "docs.internal" {
		t.Errorf("attached page label must win, got %q", res.Correlation.Clipboard.Page)
	}
	if res.Correlation == attached {
		t.Error("result must not alias the caller's correlation")
	}
}

func TestAttachedCorrelationMatchesEvenWithoutRecentClipboard(t *testing.T) {
	eng := New(clipstore.New(0))

	res := eng.Evaluate(netEv("evil.io", t0), &model.Correlation{Confidence: 0.7}, t0)
	if !res.Matched || res.Confidence != 0.7 {
		t.Fatalf("producer-attached correlation must stand alone, got %+v", res)
	}
}

func TestMatchCarriesNewestClipboardContext(t *testing.T) {
	store := clipstore.New(time.Minute)
	store.Record(model.ClipboardEvent{Timestamp: t0, Page: "old.example"}, t0)
	store.Record(model.ClipboardEvent{
		Timestamp:         t0.Add(time.Second),
		Page:              "mail.example",
		SourceExtensionID: "ext-7",
	}, t0.Add(time.Second))
	eng := New(store)

	res := eng.Evaluate(netEv("evil.io", t0.Add(2*time.Second)), nil, t0.Add(2*time.Second))
	if res.Correlation.Clipboard.Page != "mail.example" {
		t.Errorf("expected newest page label, got %q", res.Correlation.Clipboard.Page)
	}
	if res.Correlation.Clipboard.Source != "ext-7" {
		t.Errorf("expected newest extension source, got %q", res.Correlation.Clipboard.Source)
	}
}
