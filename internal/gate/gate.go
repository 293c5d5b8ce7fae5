// Package gate is the enforcement point for inbound network events. The
// blocklist check always precedes correlation: a blocked host can never
// generate a new alert, only a blocked-attempt notice.
package gate

import (
	"time"

	"github.com/ecovive/leakwatch/internal/audit"
	"github.com/ecovive/leakwatch/internal/blocklist"
	"github.com/ecovive/leakwatch/internal/correlate"
	"github.com/ecovive/leakwatch/internal/model"
	"github.com/ecovive/leakwatch/internal/risk"
)

// Publisher fans a wire message out to subscribers. Delivery is
// best-effort; Publish must not block.
type Publisher interface {
	Publish(model.Message)
}

// Outcome is the terminal result for one network event. Every event gets
// exactly one: rejected or admitted.
type Outcome struct {
	Rejected bool
	Reason   string
	Result   model.CorrelationResult
}

// Gate routes each network event through blocklist enforcement, then
// correlation, publishing the decision either way.
type Gate struct {
	blocklist *blocklist.Blocklist
	engine    *correlate.Engine
	publisher Publisher
	log       *audit.Log // optional
	metrics   *Metrics   // optional
}

// New creates a Gate. log and metrics may be nil.
func New(bl *blocklist.Blocklist, engine *correlate.Engine, pub Publisher, log *audit.Log, metrics *Metrics) *Gate {
	return &Gate{
		blocklist: bl,
		engine:    engine,
		publisher: pub,
		log:       log,
		metrics:   metrics,
	}
}

// Handle processes one inbound network event to completion. It never
// returns an error to the transport; the caller maps the outcome to a
// response.
func (g *Gate) Handle(ev model.NetworkEvent, attached *model.Correlation, now time.Time) Outcome {
	if g.metrics != nil {
		g.metrics.Requests.Inc()
	}

	if g.blocklist.IsBlocked(ev.Host) {
		if g.metrics != nil {
			g.metrics.Blocked.Inc()
		}
		g.publisher.Publish(model.Message{
			Type:    model.MsgBlockedAttempt,
			Network: &ev,
		})
		g.record(ev, audit.DecisionBlock, model.CorrelationResult{}, "destination domain is blocklisted")
		return Outcome{Rejected: true, Reason: "Blocked by LeakWatch"}
	}

	result := g.engine.Evaluate(ev, attached, now)
	if result.Matched && g.metrics != nil {
		g.metrics.Correlated.Inc()
	}

	g.publisher.Publish(model.Message{
		Type:        model.MsgProxyEvent,
		Network:     &ev,
		Correlation: result.Correlation,
	})
	g.record(ev, audit.DecisionAdmit, result, "")

	return Outcome{Result: result}
}

func (g *Gate) record(ev model.NetworkEvent, decision string, result model.CorrelationResult, reason string) {
	if g.log == nil {
		return
	}
	entry := audit.Entry{
		Host:       ev.Host,
		Decision:   decision,
		Correlated: result.Matched,
		Reason:     reason,
	}
	if result.Matched {
		entry.Confidence = result.Confidence
		entry.Risk = string(risk.Classify(result.Confidence))
	}
	// Journal failures never alter the decision.
	_ = g.log.Record(entry)
}
