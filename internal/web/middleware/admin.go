package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// AdminPasscodeHeader carries the administrator passcode.
const AdminPasscodeHeader = "X-Admin-Passcode"

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RequireAdmin is middleware that requires the administrator passcode.
// An empty passcode disables every admin route.
func RequireAdmin(passcode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passcode == "" {
				writeError(w, http.StatusForbidden, "admin access is not configured")
				return
			}
			given := r.Header.Get(AdminPasscodeHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(passcode)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
