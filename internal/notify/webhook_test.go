package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"kestrel/internal/util"
)

func TestWebhookPostsJSON(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, util.NewLogger("error", "text"))
	w.Send(context.Background(), "sell 000001.SZ", "500 @ 10.50 (hard-stop)")

	if got.Title != "sell 000001.SZ" || got.Body != "500 @ 10.50 (hard-stop)" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, util.NewLogger("error", "text"))
	w.Send(context.Background(), "t", "b")

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one failure, one retry)", calls.Load())
	}
}

func TestWebhookEmptyURLIsNoop(t *testing.T) {
	w := NewWebhook("", util.NewLogger("error", "text"))
	w.Send(context.Background(), "t", "b") // must not panic or block
}
