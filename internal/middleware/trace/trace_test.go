package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"expenses/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
		got := rec.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("response id %q is not a uuid: %v", got, err)
		}
		if seen != got {
			t.Fatalf("context id %q != header id %q", seen, got)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Header().Get(RequestIDHeader) != "abc-123" || seen != "abc-123" {
			t.Fatalf("incoming id not propagated: header=%q ctx=%q", rec.Header().Get(RequestIDHeader), seen)
		}
	})
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)
	status := http.StatusOK
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	for _, s := range []int{200, 404, 400, 500} {
		status = s
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}

	got := m.GetMetrics()
	if got.TotalRequests != 4 || got.ClientErrors != 2 || got.ServerErrors != 1 {
		t.Fatalf("metrics = %+v", got)
	}
}
