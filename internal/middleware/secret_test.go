package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTriggerSecret(t *testing.T) {
	handler := TriggerSecret("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"header secret", "X-Trigger-Secret", "s3cret", http.StatusNoContent},
		{"bearer secret", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"wrong secret", "X-Trigger-Secret", "nope", http.StatusForbidden},
		{"missing secret", "", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/reaper/run", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestTriggerSecretUnconfigured(t *testing.T) {
	handler := TriggerSecret("")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/internal/reaper/run", nil)
	req.Header.Set("X-Trigger-Secret", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
