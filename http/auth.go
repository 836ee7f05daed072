package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const ErrTypeUnauthorized = "unauthorized"

// GetAuthToken returns the bearer token of the request Authorization header.
func GetAuthToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// VerifyAuthToken checks that the request carries the given token. An empty
// token rejects every request.
func VerifyAuthToken(token string, r *http.Request) error {
	reqToken := GetAuthToken(r)

	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(reqToken)) != 1 {
		return errors.New("invalid auth token").
			WithType(ErrTypeUnauthorized).
			WithTag("path", r.URL.Path).
			WithTag("remote_addr", r.RemoteAddr)
	}
	return nil
}

// VerifyAuthTokenHandler answers 401 to requests that do not carry the given
// token, and calls next otherwise.
func VerifyAuthTokenHandler(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := VerifyAuthToken(token, r); err != nil {
			logs.WithTag("user_agent", r.UserAgent()).Warn(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}
