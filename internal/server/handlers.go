package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/ecovive/leakwatch/internal/digest"
	"github.com/ecovive/leakwatch/internal/model"
)

// maxBodyPreview is how much of an outbound request body is retained.
const maxBodyPreview = 200

// Request body limits per endpoint.
const (
	maxClipboardBody = 2 << 20
	maxProxyBody     = 5 << 20
)

// Optional headers letting an upstream producer pre-attach its own
// correlation to a traffic report. When present they take precedence over
// the store-based check.
const (
	headerConfidence  = "X-Leakwatch-Confidence"
	headerPage        = "X-Leakwatch-Page"
	headerExtensionID = "X-Leakwatch-Extension-Id"
)

var upgrader = websocket.Upgrader{
	// The dashboard is served from arbitrary local origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleExtensionEvent ingests a clipboard/input report. Any literal
// snippet is reduced to its digest before the event is stored or
// broadcast; malformed payloads and reports from blocked extensions are
// discarded. The extension always gets a success acknowledgment.
func (s *Server) handleExtensionEvent(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxClipboardBody))
	if err != nil {
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
		return
	}

	ev, snippet, err := model.DecodeClipboardPayload(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: discarding malformed extension event: %v\n", err)
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
		return
	}
	if snippet != "" {
		ev.ContentHash = digest.Snippet(snippet)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	if s.blocklist.IsExtensionBlocked(ev.SourceExtensionID) {
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
		return
	}

	s.seq.Lock()
	s.clipboard.Record(ev, s.now())
	s.hub.Publish(model.Message{Type: model.MsgExtensionEvent, Clipboard: &ev})
	s.seq.Unlock()

	writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
}

// handleProxyLog ingests one observed outbound request and routes it
// through the enforcement gate.
func (s *Server) handleProxyLog(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))

	host := r.Host
	if host == "" {
		host = "unknown"
	}
	preview := string(body)
	if len(preview) > maxBodyPreview {
		preview = preview[:maxBodyPreview]
	}

	ev := model.NetworkEvent{
		Host:        host,
		BodyPreview: preview,
		Timestamp:   s.now(),
	}

	s.seq.Lock()
	outcome := s.gate.Handle(ev, attachedCorrelation(r), s.now())
	s.seq.Unlock()

	if outcome.Rejected {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, outcome.Reason)
		return
	}
	writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
}

// handleAction applies one operator command. Unknown actions and missing
// identifiers answer ok:false, never an error status.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req model.ActionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxClipboardBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: false})
		return
	}

	s.seq.Lock()
	defer s.seq.Unlock()

	switch {
	case req.Action == model.ActionBlockDomain && req.Domain != "":
		s.blocklist.Block(req.Domain)
		s.hub.Publish(model.Message{Type: model.MsgBlockedDomain, Domain: req.Domain})
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
	case req.Action == model.ActionBlockExtension && req.ExtensionID != "":
		s.blocklist.BlockExtension(req.ExtensionID)
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
	case req.Action == model.ActionUnblockDomain && req.Domain != "":
		s.blocklist.Unblock(req.Domain)
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: true})
	default:
		writeJSON(w, http.StatusOK, model.ActionResponse{OK: false})
	}
}

// handleWS upgrades a dashboard connection and hands it to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.Register(conn)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
	})
}

// attachedCorrelation reads the producer's pre-attached correlation, if any.
func attachedCorrelation(r *http.Request) *model.Correlation {
	raw := r.Header.Get(headerConfidence)
	if raw == "" {
		return nil
	}
	confidence, err := strconv.ParseFloat(raw, 64)
	if err != nil || confidence <= 0 || confidence > 1 {
		return nil
	}

	page := r.Header.Get(headerPage)
	if page == "" {
		page = "unknown"
	}
	return &model.Correlation{
		Confidence: confidence,
		Clipboard: model.ClipboardRef{
			Page:   page,
			Source: r.Header.Get(headerExtensionID),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
