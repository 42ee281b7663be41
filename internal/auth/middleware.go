package auth

import (
	"crypto/subtle"
	"net/http"
)

// Headers the service credential is accepted in. X-Appwrite-Key is the name
// used by existing function callers.
const (
	HeaderAPIKey      = "X-Api-Key"
	HeaderAppwriteKey = "X-Appwrite-Key"
)

// RequireServiceKey rejects requests that do not present key in one of the
// API key headers. The comparison runs in constant time.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireServiceKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAPIKey)
			if got == "" {
				got = r.Header.Get(HeaderAppwriteKey)
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"message":"valid service key required"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
