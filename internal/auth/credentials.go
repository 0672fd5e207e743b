package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var (
	ErrNoIdentity   = errors.New("no user identity in credentials")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidAuth  = errors.New("auth parameter is not a JSON object")
)

// Credentials is the object a client presents when it connects.
type Credentials map[string]any

// UserID extracts the user id from userId, id or user.id, in that order.
// Numeric ids are accepted and formatted without a fraction.
func (c Credentials) UserID() (string, bool) {
	if c == nil {
		return "", false
	}
	if id, ok := idString(c["userId"]); ok {
		return id, true
	}
	if id, ok := idString(c["id"]); ok {
		return id, true
	}
	if user, ok := c["user"].(map[string]any); ok {
		return idString(user["id"])
	}
	return "", false
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		if id != float64(int64(id)) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case json.Number:
		if _, err := id.Int64(); err != nil {
			return "", false
		}
		return id.String(), true
	}
	return "", false
}

// Authenticator resolves the user behind a connection request.
type Authenticator struct {
	verifier *Verifier
}

// NewAuthenticator builds an Authenticator. A nil or disabled verifier means
// bearer tokens are ignored and unverified credentials are trusted.
func NewAuthenticator(v *Verifier) *Authenticator {
	return &Authenticator{verifier: v}
}

// Authenticate returns the user behind a connection request.
//
// With a verifier configured only a valid bearer token is accepted. Without
// one the "auth" query parameter is checked first, then the gateway's
// X-User-Id header.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a.verifier.Enabled() {
		raw := bearerToken(r)
		if raw == "" {
			return "", ErrNoIdentity
		}
		claims, err := a.verifier.Parse(raw)
		if err != nil {
			return "", ErrInvalidToken
		}
		if id, ok := claims.Credentials().UserID(); ok {
			return id, nil
		}
		return "", ErrNoIdentity
	}

	if raw := r.URL.Query().Get("auth"); raw != "" {
		var creds Credentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			return "", ErrInvalidAuth
		}
		if id, ok := creds.UserID(); ok {
			return id, nil
		}
	}

	if id, ok := (Credentials{"userId": r.Header.Get("X-User-Id")}).UserID(); ok {
		return id, nil
	}
	return "", ErrNoIdentity
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
