package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDPropagatesValidHeader(t *testing.T) {
	const inbound = "5f0c3f3a-9a1e-4f5b-8e8a-2f1d6c7b9e01"
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", inbound)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != inbound {
		t.Fatalf("context request id = %q, want %q", seen, inbound)
	}
	if got := rec.Header().Get("X-Request-ID"); got != inbound {
		t.Fatalf("response header = %q, want %q", got, inbound)
	}
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>junk</script>")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	if got == "<script>junk</script>" {
		t.Fatal("malformed request id passed through")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("replacement %q is not a uuid: %v", got, err)
	}
}
