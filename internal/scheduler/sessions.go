package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"llmserve/internal/llm"
	"llmserve/internal/snapshot"
)

// SessionStore picks the starting session for each request.
//
// With a restore path the snapshot is read and checked once, when the
// store is built; every request then gets its own session restored from
// that in-memory copy, so all requests start from the same primed state.
// Without one, each request gets a fresh session.
type SessionStore struct {
	model       llm.Model
	memory      llm.MemoryConfig
	restorePath string
	primed      *snapshot.Snapshot
	log         zerolog.Logger
}

// NewSessionStore builds the store. Failing to open, decompress, decode or
// restore the snapshot is a *StartupError.
func NewSessionStore(model llm.Model, cfg Config, log zerolog.Logger) (*SessionStore, error) {
	s := &SessionStore{
		model:       model,
		memory:      llm.MemoryFor(cfg.Precision()),
		restorePath: cfg.RestorePath,
		log:         log,
	}
	if s.restorePath == "" {
		return s, nil
	}
	snap, err := snapshot.Load(s.restorePath)
	if err != nil {
		return nil, &StartupError{Stage: "load snapshot", Err: err}
	}
	// Restore once now so an incompatible snapshot fails before serving.
	sess, err := model.RestoreSession(snap.Clone())
	if err != nil {
		return nil, &StartupError{Stage: "restore snapshot", Err: fmt.Errorf("%s: %w", s.restorePath, err)}
	}
	_ = sess.Close()
	s.primed = snap
	log.Info().
		Str("path", s.restorePath).
		Int("position", snap.Position).
		Str("precision", snap.Precision).
		Msg("restored prompt snapshot")
	return s, nil
}

// Session returns the starting session for one request.
func (s *SessionStore) Session() (llm.Session, error) {
	if s.primed != nil {
		sess, err := s.model.RestoreSession(s.primed.Clone())
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
		return sess, nil
	}
	sess, err := s.model.StartSession(s.memory)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return sess, nil
}

// RestorePath is the configured snapshot path, empty when sessions start fresh.
func (s *SessionStore) RestorePath() string { return s.restorePath }
