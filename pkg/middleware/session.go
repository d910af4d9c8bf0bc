package middleware

import "net/http"

// SessionHeader selects the index a request operates on.
const SessionHeader = "X-Session-ID"

// SessionKey returns the request's session header, used as the rate-limit
// key. Requests without one share the "default" bucket.
func SessionKey(r *http.Request) string {
	if s := r.Header.Get(SessionHeader); s != "" {
		return s
	}
	return "default"
}
