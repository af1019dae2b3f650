package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth guards the worker-facing task queue endpoints. Credentials
// are optional: with an empty user the middleware passes everything
// through, matching deployments on a trusted network. Failures reply in
// plain text because the worker wire contract has no JSON surface.
type BasicAuth struct {
	user     string
	password string
}

func NewBasicAuth(user, password string) *BasicAuth {
	return &BasicAuth{user: user, password: password}
}

func (b *BasicAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.user == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, password, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(b.user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(b.password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="crashd"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
