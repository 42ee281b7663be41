package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireServiceKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		key        string
		header     string
		value      string
		wantStatus int
	}{
		{"api key header", "secret", HeaderAPIKey, "secret", http.StatusNoContent},
		{"appwrite header", "secret", HeaderAppwriteKey, "secret", http.StatusNoContent},
		{"wrong key", "secret", HeaderAPIKey, "guess", http.StatusUnauthorized},
		{"missing key", "secret", "", "", http.StatusUnauthorized},
		{"unconfigured key rejects all", "", HeaderAPIKey, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tokens", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()

			RequireServiceKey(tt.key)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
