package pay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"call":`+string(rune('0'+n))+`,"echo":`+string(body)+`}`)
	})
	h := NewIdempotency(NewMemoryIdempotencyStore()).Middleware(next)

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(body))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("k-1", `{"a":1}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	again := send("k-1", `{"a":1}`)
	if again.Code != http.StatusCreated || again.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q vs %q", again.Code, again.Body, first.Body)
	}
	if again.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("replay not flagged")
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times", calls.Load())
	}

	if rec := send("k-1", `{"a":2}`); rec.Code != http.StatusConflict {
		t.Fatalf("different body under same key: expected 409, got %d", rec.Code)
	}

	send("", `{"a":1}`)
	send("", `{"a":1}`)
	if calls.Load() != 3 {
		t.Fatalf("requests without a key must pass through, handler ran %d times", calls.Load())
	}
}

func TestResponseStatus(t *testing.T) {
	for _, v := range []any{201, int32(201), int64(201), float64(201)} {
		if got := responseStatus(v); got != 201 {
			t.Errorf("%T: expected 201, got %d", v, got)
		}
	}
	if got := responseStatus(nil); got != http.StatusOK {
		t.Errorf("nil: expected 200, got %d", got)
	}
}
