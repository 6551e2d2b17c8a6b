// Package session ties a browser to its form instance: a signed, encrypted
// cookie carries the instance id and a registry keeps the instances in memory.
package session

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"ulift/internal/crypto"
)

const (
	CookieName  = "ulift"
	instanceKey = "instance"
)

// Store is an interface for storing sessions.
type Store interface {
	Get(r *http.Request, name string) (*sessions.Session, error)
	New(r *http.Request, name string) (*sessions.Session, error)
	Save(r *http.Request, w http.ResponseWriter, s *sessions.Session) error
}

// NewCookieStore builds a cookie store keyed from the master key.
func NewCookieStore(keys *crypto.CookieKeys, secure bool, maxAge int) *sessions.CookieStore {
	store := sessions.NewCookieStore(keys.Hash, keys.Block)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// InstanceID returns the form-instance id of the request, assigning and
// saving a new one when the cookie is missing or cannot be decoded.
func InstanceID(store Store, w http.ResponseWriter, r *http.Request) (string, error) {
	s, err := store.Get(r, CookieName)
	if err != nil {
		// tampered or stale key: start over
		s, err = store.New(r, CookieName)
		if s == nil {
			return "", fmt.Errorf("new session: %w", err)
		}
	}
	if id, ok := s.Values[instanceKey].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	s.Values[instanceKey] = id
	if err := store.Save(r, w, s); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return id, nil
}
