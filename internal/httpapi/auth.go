package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authorizer decides whether a request may reach the API.
type Authorizer interface {
	Authorize(r *http.Request) bool
}

// AllowAll admits every request. Used when no tokens are configured.
type AllowAll struct{}

func (AllowAll) Authorize(*http.Request) bool { return true }

// TokenAuthorizer accepts "Authorization: Bearer <token>" for any token in a
// static set.
type TokenAuthorizer struct {
	tokens [][]byte
}

func NewTokenAuthorizer(tokens []string) *TokenAuthorizer {
	a := &TokenAuthorizer{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	return a
}

func (a *TokenAuthorizer) Authorize(r *http.Request) bool {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	got := []byte(strings.TrimSpace(token))
	for _, want := range a.tokens {
		if subtle.ConstantTimeCompare(got, want) == 1 {
			return true
		}
	}
	return false
}

func RequireAuth(auth Authorizer, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.Authorize(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="shop"`)
			writeError(w, http.StatusUnauthorized, "authentication credentials were not provided", "")
			return
		}
		next(w, r)
	}
}
