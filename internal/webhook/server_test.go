package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/refinement-bot/refinery/internal/chat"
)

type recordingHandler struct {
	mu   sync.Mutex
	msgs []chat.InboundMessage
}

func (h *recordingHandler) Handle(ctx context.Context, msg chat.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func post(router http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Refinery-Token", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := NewRouter(StartOpts{Handler: &recordingHandler{}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", w.Code)
	}
}

func TestMessageDelivered(t *testing.T) {
	h := &recordingHandler{}
	router := NewRouter(StartOpts{Handler: h, Token: "s3cret"})

	w := post(router, "s3cret", `{"user_name":"Alice","text":"#101: 5","channel_id":"D1"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if h.count() != 1 {
		t.Fatalf("handled = %d, want 1", h.count())
	}

	h.mu.Lock()
	msg := h.msgs[0]
	h.mu.Unlock()
	if msg.UserName != "Alice" || msg.Text != "#101: 5" || msg.ChannelID != "D1" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Platform != "webhook" {
		t.Errorf("platform = %q, want webhook default", msg.Platform)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestTokenRequired(t *testing.T) {
	h := &recordingHandler{}
	router := NewRouter(StartOpts{Handler: h, Token: "s3cret"})

	w := post(router, "", `{"user_name":"Alice","text":"status"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}
	w = post(router, "wrong", `{"user_name":"Alice","text":"status"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}
	if h.count() != 0 {
		t.Error("handler called despite bad token")
	}
}

func TestTokenOptional(t *testing.T) {
	h := &recordingHandler{}
	router := NewRouter(StartOpts{Handler: h})

	w := post(router, "", `{"user_name":"Alice","text":"status"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
}

func TestBadPayload(t *testing.T) {
	h := &recordingHandler{}
	router := NewRouter(StartOpts{Handler: h})

	for _, body := range []string{`not json`, `{"text":"no user"}`, `{"user_name":"Alice"}`} {
		w := post(router, "", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q status = %d, want 400", body, w.Code)
		}
	}
	if h.count() != 0 {
		t.Error("handler called for invalid payloads")
	}
}
