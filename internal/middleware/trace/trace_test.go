package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dompet/internal/log"
)

type recordingObserver struct {
	method, route string
	code          int
	calls         int
}

func (o *recordingObserver) ObserveHTTP(method, route string, code int, d time.Duration) {
	o.method, o.route, o.code = method, route, code
	o.calls++
}

func newLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Output: buf, Format: "text"})
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	obs := &recordingObserver{}
	mw := NewMiddleware(newLogger(&buf), func(*http.Request) string { return "10.0.0.1" }, obs)

	var seen string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	mw.Middleware(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id %q does not look generated", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	if obs.calls != 1 || obs.code != http.StatusTeapot || obs.route != "GET /items/{id}" {
		t.Errorf("observer got %+v", obs)
	}
	out := buf.String()
	if !strings.Contains(out, "HTTP request completed") || !strings.Contains(out, "client_ip=10.0.0.1") {
		t.Errorf("missing completion log: %s", out)
	}
	if !strings.Contains(out, "request_id="+seen) {
		t.Errorf("completion log lacks request id: %s", out)
	}
}

func TestCaptureRoute_ThroughContextCopies(t *testing.T) {
	obs := &recordingObserver{}
	mw := NewMiddleware(newLogger(&bytes.Buffer{}), nil, obs)

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /transactions/{id}", func(w http.ResponseWriter, r *http.Request) {})

	// log.Middleware copies the request, so the mux never sees the one the
	// tracer holds.
	h := mw.Middleware(log.Middleware(newLogger(&bytes.Buffer{}))(CaptureRoute(mux)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/transactions/9", nil))

	if obs.route != "DELETE /transactions/{id}" {
		t.Errorf("route = %q", obs.route)
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMiddleware(newLogger(&buf), nil, nil)

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"valid", "abc-123", true},
		{"with space", "abc 123", false},
		{"too long", strings.Repeat("x", 65), false},
		{"non ascii", "réq", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderRequestID, tt.incoming)
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.keep && seen != tt.incoming {
				t.Errorf("got %q, want incoming id kept", seen)
			}
			if !tt.keep && seen == tt.incoming {
				t.Errorf("invalid incoming id %q was kept", tt.incoming)
			}
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", rw.statusCode)
	}
}
