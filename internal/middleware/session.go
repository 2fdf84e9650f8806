package middleware

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/memstore"
	"golang.org/x/crypto/hkdf"

	"spacomments/internal/config"
)

var ErrEmptySessionSecret = errors.New("session secret is empty")

// NewSessionStore builds the configured session store. The secret is only
// used as key material: signing and encryption keys are derived from it.
func NewSessionStore(cfg config.Session) (sessions.Store, error) {
	authKey, encKey, err := deriveSessionKeys(cfg.Secret)
	if err != nil {
		return nil, err
	}

	var store sessions.Store
	switch cfg.Store {
	case "", "cookie":
		store = cookie.NewStore(authKey, encKey)
	case "memory":
		store = memstore.NewStore(authKey, encKey)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return store, nil
}

// deriveSessionKeys returns a 64-byte HMAC key and a 32-byte AES key.
func deriveSessionKeys(secret string) (authKey, encKey []byte, err error) {
	if secret == "" {
		return nil, nil, ErrEmptySessionSecret
	}
	authKey = make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("session-auth")), authKey); err != nil {
		return nil, nil, fmt.Errorf("derive session auth key: %w", err)
	}
	encKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("session-encryption")), encKey); err != nil {
		return nil, nil, fmt.Errorf("derive session encryption key: %w", err)
	}
	return authKey, encKey, nil
}
