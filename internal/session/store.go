// Package session persists the single current session. Every operation is
// best effort: failures are logged and degrade to "no session".
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/token"
)

// Key is the durable key holding the serialized session.
const Key = "current_session"

// Store reads and writes the current session.
type Store struct {
	kv     store.KV
	logger *log.Logger
}

// NewStore wraps kv. If logger is nil, a default logger writing to stderr is
// used.
func NewStore(kv store.KV, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Store{kv: kv, logger: logger}
}

// Current returns the persisted session, or nil when there is none or it
// cannot be used.
func (s *Store) Current(ctx context.Context) *model.Session {
	b, err := s.kv.Get(ctx, Key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Printf("WARNING: failed to read session: %v", err)
		}
		return nil
	}

	var sess model.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		s.logger.Printf("WARNING: discarding unreadable session: %v", err)
		return nil
	}
	sess.Email = model.NormalizeEmail(sess.Email)
	sess.Token = token.StripBearer(sess.Token)
	if !sess.Valid() {
		s.logger.Printf("WARNING: discarding incomplete session")
		return nil
	}
	// expiry is derived from the token, never stored
	if c, err := token.Decode(sess.Token); err == nil {
		sess.ExpiresAt = c.ExpiresAt
	}
	return &sess
}

// Save persists sess. A nil or incomplete session is not written.
func (s *Store) Save(ctx context.Context, sess *model.Session) {
	if !sess.Valid() {
		s.logger.Printf("WARNING: refusing to save incomplete session")
		return
	}
	b, err := json.Marshal(model.Session{
		ID:    sess.ID,
		Email: model.NormalizeEmail(sess.Email),
		Token: sess.Token,
	})
	if err != nil {
		s.logger.Printf("WARNING: failed to encode session: %v", err)
		return
	}
	if err := s.kv.Put(ctx, Key, b); err != nil {
		s.logger.Printf("WARNING: failed to save session: %v", err)
		return
	}
	s.logger.Printf("Saved session for %s", sess.Email)
}

// Clear removes the persisted session.
func (s *Store) Clear(ctx context.Context) {
	if err := s.kv.Delete(ctx, Key); err != nil {
		s.logger.Printf("WARNING: failed to clear session: %v", err)
		return
	}
	s.logger.Printf("Cleared session")
}
