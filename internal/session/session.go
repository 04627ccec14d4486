// Package session reads and writes the study session and auth token kept in
// key-value storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"captionminer/internal/cards"
	"captionminer/internal/services"
)

const (
	// StorageKey holds the active StudySession.
	StorageKey = "studySession"
	// AuthTokenKey holds the bearer token for backend calls.
	AuthTokenKey = "authToken"
)

// Store is the subset of key-value storage the session helpers need.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, items map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
}

// StudySession is the user's active study configuration. Its presence in
// storage is what keeps the caption engine running.
type StudySession struct {
	DeckID             string     `json:"deckId"`
	DeckName           string     `json:"deckName"`
	Mode               cards.Mode `json:"mode"`
	AudioEnabled       bool       `json:"audioEnabled"`
	LeadIn             float64    `json:"leadIn"`
	TailOut            float64    `json:"tailOut"`
	AutoSeek           bool       `json:"autoSeek"`
	TranslationEnabled bool       `json:"translationEnabled"`
}

// Validate reports whether the session can drive submissions.
func (s StudySession) Validate() error {
	if strings.TrimSpace(s.DeckID) == "" {
		return services.Wrap(services.ErrValidation, "session", "validate", "deck id required", nil)
	}
	if _, err := cards.ParseMode(string(s.Mode)); err != nil {
		return services.Wrap(services.ErrValidation, "session", "validate", "", err)
	}
	return nil
}

// Load reads the study session. The boolean is false when none is stored.
func Load(ctx context.Context, store Store) (StudySession, bool, error) {
	values, err := store.Get(ctx, StorageKey)
	if err != nil {
		return StudySession{}, false, err
	}
	raw, ok := values[StorageKey]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return StudySession{}, false, nil
	}
	var sess StudySession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return StudySession{}, false, services.Wrap(services.ErrValidation, "session", "decode", "stored session is malformed", err)
	}
	return sess, true, nil
}

// Save stores the study session, replacing any existing one.
func Save(ctx context.Context, store Store, sess StudySession) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return store.Set(ctx, map[string][]byte{StorageKey: encoded})
}

// Clear removes the study session, which tears down any running engine.
func Clear(ctx context.Context, store Store) error {
	return store.Remove(ctx, StorageKey)
}

// AuthToken returns the stored bearer token, or "" when none is set.
func AuthToken(ctx context.Context, store Store) (string, error) {
	values, err := store.Get(ctx, AuthTokenKey)
	if err != nil {
		return "", err
	}
	raw, ok := values[AuthTokenKey]
	if !ok || len(raw) == 0 {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", services.Wrap(services.ErrValidation, "session", "decode", "stored auth token is malformed", err)
	}
	return strings.TrimSpace(token), nil
}

// SetAuthToken stores the bearer token.
func SetAuthToken(ctx context.Context, store Store, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("auth token must not be empty")
	}
	encoded, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return store.Set(ctx, map[string][]byte{AuthTokenKey: encoded})
}

// ClearAuthToken removes the stored bearer token.
func ClearAuthToken(ctx context.Context, store Store) error {
	return store.Remove(ctx, AuthTokenKey)
}

// TokenSource adapts storage into a bearer token provider for HTTP clients.
// A fallback token (typically from config) is used when storage has none.
type TokenSource struct {
	Store    Store
	Fallback string
}

// Token implements the token provider contract used by the backend clients.
func (s TokenSource) Token(ctx context.Context) (string, error) {
	if s.Store != nil {
		token, err := AuthToken(ctx, s.Store)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return strings.TrimSpace(s.Fallback), nil
}
