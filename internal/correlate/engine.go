// Package correlate decides whether an outbound request matches a recent
// clipboard action. Correlation is purely temporal: the engine never
// inspects request bodies, and any clipboard activity inside the window
// makes a request suspicious regardless of destination.
package correlate

import (
	"time"

	"github.com/ecovive/leakwatch/internal/clipstore"
	"github.com/ecovive/leakwatch/internal/model"
)

// ExplicitConfidence is assigned on the explicit correlation path: a recent
// clipboard event exists and no producer-attached confidence overrides it.
const ExplicitConfidence = 0.9

// Engine computes correlation results against a clipboard event store.
type Engine struct {
	store *clipstore.Store
}

// New creates an Engine over the given store.
func New(store *clipstore.Store) *Engine {
	return &Engine{store: store}
}

// Evaluate computes the correlation result for a network event. A
// producer-attached correlation takes precedence over the store-based
// check; otherwise any recent clipboard event yields a match at
// ExplicitConfidence. Unmatched events are still forwarded downstream by
// the caller; the result only controls alerting.
func (e *Engine) Evaluate(ev model.NetworkEvent, attached *model.Correlation, now time.Time) model.CorrelationResult {
	if attached != nil {
		c := *attached
		return model.CorrelationResult{
			Matched:     true,
			Confidence:  c.Confidence,
			Correlation: &c,
		}
	}

	recent := e.store.Recent(now)
	if len(recent) == 0 {
		return model.CorrelationResult{}
	}

	// Label the match with the newest clipboard event's context so the
	// subscriber can offer extension-level blocking.
	last := recent[len(recent)-1]
	page := last.Page
	if page == "" {
		page = "unknown"
	}

	return model.CorrelationResult{
		Matched:    true,
		Confidence: ExplicitConfidence,
		Correlation: &model.Correlation{
			Confidence: ExplicitConfidence,
			Clipboard:  model.ClipboardRef{Page: page, Source: last.SourceExtensionID},
		},
	}
}
