package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/walletcore-backend/api/responses"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

func newBufferedLogger() (*logger.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return logger.New(logger.Options{ServiceName: "test", Output: buf}), buf
}

func TestRequestIDEchoesSaneHeader(t *testing.T) {
	logg, buf := newBufferedLogger()
	handler := RequestID(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logg.Info(r.Context(), "inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-42")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get(requestIDHeader); got != "edge-42" {
		t.Fatalf("expected echoed id, got %q", got)
	}
	if !strings.Contains(buf.String(), `"request_id":"edge-42"`) {
		t.Fatalf("expected request id on log entry: %s", buf.String())
	}
}

func TestRequestIDReplacesHostileHeader(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, bad := range []string{"", "has space", strings.Repeat("x", maxRequestIDLen+1), "tab\there"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		got := resp.Header().Get(requestIDHeader)
		if got == bad || len(got) != 26 {
			t.Fatalf("expected a fresh ulid for %q, got %q", bad, got)
		}
	}
}

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	logg, buf := newBufferedLogger()
	handler := Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body responses.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(body.Error.Message, "nil map") {
		t.Fatalf("panic value leaked to the client: %q", body.Error.Message)
	}
	if !strings.Contains(buf.String(), "nil map write") {
		t.Fatalf("expected panic value in the log: %s", buf.String())
	}
}

func TestRecovererRethrowsAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestLoggingUsesRoutePattern(t *testing.T) {
	logg, buf := newBufferedLogger()
	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/accounts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/accounts/abc", nil))

	out := buf.String()
	if !strings.Contains(out, `"route":"/accounts/{id}"`) {
		t.Fatalf("expected route pattern, got %s", out)
	}
	if !strings.Contains(out, `"status":204`) {
		t.Fatalf("expected recorded status, got %s", out)
	}
}
