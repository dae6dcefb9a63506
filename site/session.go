package site

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	token     string
	user      string
	role      string
	captcha   *captcha
	expiresAt time.Time
}

// sessionStore keeps browser sessions in memory, keyed by cookie token.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{sessions: make(map[string]*session), ttl: ttl, now: now}
}

// get returns a snapshot of the live session for r. Expired sessions are
// dropped; live ones have their expiry extended.
func (s *sessionStore) get(r *http.Request, cookieName string) (session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[c.Value]
	if !ok {
		return session{}, false
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, c.Value)
		return session{}, false
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return *sess, true
}

// create starts a new anonymous session, prunes expired ones and returns
// the new token.
func (s *sessionStore) create() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for tok, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, tok)
		}
	}
	sess := &session{token: uuid.NewString(), expiresAt: now.Add(s.ttl)}
	s.sessions[sess.token] = sess
	return sess.token
}

// update applies fn to the session for token under the store lock and
// reports whether it exists.
func (s *sessionStore) update(token string, fn func(*session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	fn(sess)
	return true
}

func (s *sessionStore) destroy(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
