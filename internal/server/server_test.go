package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecovive/leakwatch/internal/model"
)

var t0 = time.UnixMilli(1700000000000)

type fixture struct {
	t      *testing.T
	server *Server
	http   *httptest.Server
	clock  time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f := &fixture{t: t, server: s, clock: t0}
	s.now = func() time.Time { return f.clock }

	f.http = httptest.NewServer(s.Router())
	t.Cleanup(f.http.Close)
	t.Cleanup(func() { s.Close() })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) post(path string, body string) *http.Response {
	f.t.Helper()
	resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		f.t.Fatalf("POST %s: %v", path, err)
	}
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) proxyLog(host, body string, headers map[string]string) *http.Response {
	f.t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.http.URL+"/proxy-log", bytes.NewReader([]byte(body)))
	if err != nil {
		f.t.Fatal(err)
	}
	req.Host = host
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		f.t.Fatalf("POST /proxy-log: %v", err)
	}
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) subscribe() *websocket.Conn {
	f.t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		f.t.Fatalf("dial ws: %v", err)
	}
	f.t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for f.server.hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			f.t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func (f *fixture) read(conn *websocket.Conn) model.Message {
	f.t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		f.t.Fatalf("read ws: %v", err)
	}
	msg, err := model.DecodeMessage(data)
	if err != nil {
		f.t.Fatalf("decode ws message: %v", err)
	}
	return msg
}

func decodeAck(t *testing.T, resp *http.Response) model.ActionResponse {
	t.Helper()
	var ack model.ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack
}

func TestClipboardIngestionStripsSnippet(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	resp := f.post("/extension-event", `{"type":"copy","snippet":"secret-text","page":"mail.example"}`)
	if !decodeAck(t, resp).OK {
		t.Fatal("expected success acknowledgment")
	}

	msg := f.read(conn)
	if msg.Type != model.MsgExtensionEvent {
		t.Fatalf("expected extension-event, got %s", msg.Type)
	}
	if msg.Clipboard == nil || msg.Clipboard.ContentHash == "" {
		t.Fatal("expected a content hash on the broadcast event")
	}
	if strings.Contains(msg.Clipboard.ContentHash, "secret-text") {
		t.Error("raw snippet leaked into the broadcast")
	}
}

func TestMalformedClipboardPayloadDiscardedButAcked(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.post("/extension-event", `{{{not json`)
	if !decodeAck(t, resp).OK {
		t.Fatal("malformed payload must still be acknowledged")
	}

	// Nothing was recorded: a request right after stays uncorrelated.
	conn := f.subscribe()
	f.proxyLog("evil.io", "data", nil)
	msg := f.read(conn)
	if msg.Correlation != nil {
		t.Error("discarded payload must not make requests suspicious")
	}
}

func TestScenarioCorrelatedRequestInsideWindow(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	f.post("/extension-event", `{"type":"copy","snippet":"acct 4411"}`)
	f.read(conn) // extension-event

	f.advance(2 * time.Second)
	resp := f.proxyLog("evil.io", "exfil body", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	msg := f.read(conn)
	if msg.Type != model.MsgProxyEvent {
		t.Fatalf("expected proxy-event, got %s", msg.Type)
	}
	if msg.Correlation == nil || msg.Correlation.Confidence != 0.9 {
		t.Fatalf("expected 0.9-confidence correlation, got %+v", msg.Correlation)
	}
	if msg.Network.Host != "evil.io" {
		t.Errorf("expected host evil.io, got %q", msg.Network.Host)
	}
}

func TestScenarioUncorrelatedRequestOutsideWindow(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	f.post("/extension-event", `{"type":"copy"}`)
	f.read(conn)

	f.advance(6 * time.Second)
	resp := f.proxyLog("evil.io", "body", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected admission, got %d", resp.StatusCode)
	}

	msg := f.read(conn)
	if msg.Type != model.MsgProxyEvent {
		t.Fatalf("event must still be forwarded, got %s", msg.Type)
	}
	if msg.Correlation != nil {
		t.Errorf("expected no correlation at t+6s, got %+v", msg.Correlation)
	}
}

func TestScenarioBlockDomainThenRejected(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	resp := f.post("/action", `{"action":"block-domain","domain":"evil.io"}`)
	if !decodeAck(t, resp).OK {
		t.Fatal("expected ok:true for block-domain")
	}
	if msg := f.read(conn); msg.Type != model.MsgBlockedDomain || msg.Domain != "evil.io" {
		t.Fatalf("expected blocked-domain broadcast, got %+v", msg)
	}

	resp = f.proxyLog("evil.io:443", "body", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked host with port, got %d", resp.StatusCode)
	}
	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	if !strings.Contains(string(body[:n]), "Blocked by LeakWatch") {
		t.Errorf("expected human-readable block reason, got %q", body[:n])
	}

	if msg := f.read(conn); msg.Type != model.MsgBlockedAttempt {
		t.Fatalf("expected blocked-attempt broadcast, got %+v", msg)
	}
}

func TestUnblockDomainRestoresAdmission(t *testing.T) {
	f := newFixture(t, Config{})

	f.post("/action", `{"action":"block-domain","domain":"evil.io"}`)
	f.post("/action", `{"action":"unblock-domain","domain":"evil.io"}`)

	resp := f.proxyLog("evil.io", "body", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected admission after unblock, got %d", resp.StatusCode)
	}
}

func TestBlockExtensionCommand(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.post("/action", `{"action":"block-extension","extensionId":"ext-bad"}`)
	if !decodeAck(t, resp).OK {
		t.Fatal("expected ok:true for block-extension")
	}
	if !f.server.blocklist.IsExtensionBlocked("ext-bad") {
		t.Error("extension not recorded as blocked")
	}
}

func TestBlockedExtensionReportsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	f.post("/action", `{"action":"block-extension","extensionId":"ext-bad"}`)
	conn := f.subscribe()

	resp := f.post("/extension-event", `{"type":"copy","snippet":"x","extensionId":"ext-bad"}`)
	if !decodeAck(t, resp).OK {
		t.Fatal("blocked extensions must still be acknowledged")
	}

	// The report neither broadcasts nor seeds the correlation window.
	f.proxyLog("evil.io", "body", nil)
	msg := f.read(conn)
	if msg.Type != model.MsgProxyEvent {
		t.Fatalf("expected only the proxy-event, got %s", msg.Type)
	}
	if msg.Correlation != nil {
		t.Error("blocked extension's report must not make traffic suspicious")
	}
}

func TestUnknownOrIncompleteActionsAnswerFalse(t *testing.T) {
	f := newFixture(t, Config{})

	for _, body := range []string{
		`{"action":"self-destruct"}`,
		`{"action":"block-domain"}`,
		`{"action":"block-extension"}`,
		`not json`,
		`{}`,
	} {
		resp := f.post("/action", body)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("action %q: expected 200, got %d", body, resp.StatusCode)
		}
		if decodeAck(t, resp).OK {
			t.Errorf("action %q: expected ok:false", body)
		}
	}
}

func TestProducerAttachedCorrelationWins(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	resp := f.proxyLog("evil.io", "body", map[string]string{
		"X-Leakwatch-Confidence":   "0.65",
		"X-Leakwatch-Page":         "docs.internal",
		"X-Leakwatch-Extension-Id": "ext-7",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected admission, got %d", resp.StatusCode)
	}

	msg := f.read(conn)
	if msg.Correlation == nil || msg.Correlation.Confidence != 0.65 {
		t.Fatalf("expected attached confidence 0.65, got %+v", msg.Correlation)
	}
	if msg.Correlation.Clipboard.Page != "docs.internal" {
		t.Errorf("expected attached page, got %q", msg.Correlation.Clipboard.Page)
	}
	if msg.Correlation.Clipboard.Source != "ext-7" {
		t.Errorf("expected attached extension id, got %q", msg.Correlation.Clipboard.Source)
	}
}

func TestInvalidAttachedConfidenceIgnored(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	f.proxyLog("evil.io", "body", map[string]string{"X-Leakwatch-Confidence": "2.5"})
	if msg := f.read(conn); msg.Correlation != nil {
		t.Errorf("out-of-range confidence must be ignored, got %+v", msg.Correlation)
	}
}

func TestBodyPreviewTruncated(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.subscribe()

	f.proxyLog("evil.io", strings.Repeat("x", 5000), nil)
	msg := f.read(conn)
	if len(msg.Network.BodyPreview) != maxBodyPreview {
		t.Errorf("expected %d-byte preview, got %d", maxBodyPreview, len(msg.Network.BodyPreview))
	}
}

func TestBlocklistSeedAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.yaml")
	os.WriteFile(path, []byte("domains:\n  - seeded.example\n"), 0600)

	f := newFixture(t, Config{BlocklistPath: path})

	if resp := f.proxyLog("seeded.example", "x", nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected seeded domain rejected, got %d", resp.StatusCode)
	}

	os.WriteFile(path, []byte("domains:\n  - other.example\n"), 0600)
	if err := f.server.ReloadBlocklist(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if resp := f.proxyLog("seeded.example", "x", nil); resp.StatusCode != http.StatusOK {
		t.Error("expected stale entry dropped after reload")
	}
	if resp := f.proxyLog("other.example", "x", nil); resp.StatusCode != http.StatusForbidden {
		t.Error("expected fresh entry enforced after reload")
	}
}

func TestNewReloaderRequiresExistingSeed(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := NewReloader(f.server); err == nil {
		t.Error("expected error with no blocklist path configured")
	}
}

func TestDecisionsAuditedAcrossRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	f := newFixture(t, Config{AuditLogPath: path})

	f.post("/action", `{"action":"block-domain","domain":"evil.io"}`)
	f.proxyLog("evil.io", "x", nil)
	f.proxyLog("ok.example", "x", nil)
	f.server.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read decision log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 decisions journaled, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"block"`) || !strings.Contains(lines[1], `"admit"`) {
		t.Errorf("unexpected journal contents: %v", lines)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{})
	resp, err := http.Get(f.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t, Config{})
	f.proxyLog("ok.example", "x", nil)

	resp, err := http.Get(f.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "leakwatch_requests_total 1") {
		t.Errorf("expected request counter in metrics output")
	}
}
