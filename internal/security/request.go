package security

import (
	"net/http"
	"strings"
)

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the access_token query parameter for browser websocket clients that
// cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
