package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/storedesk/storedesk/internal/access"
)

// AssistantConversationKey holds the assistant conversation id of a session.
const AssistantConversationKey = "assistant_conversation"

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
	now        func() time.Time
}

// Session holds per-request session data. The credential token and the user
// profile are only ever written together under mu.
type Session struct {
	ID string

	mu        sync.Mutex
	values    map[string]string
	token     string
	user      string
	expiresAt time.Time
	flashes   []FlashMessage
	manager   *SessionManager
	staleID   string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values    map[string]string `json:"values"`
	Token     string            `json:"token,omitempty"`
	User      string            `json:"user,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	Flashes   []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
		now:        time.Now,
	}
}

// Load loads or creates a new session for request. A stored record that no
// longer decodes is replaced by an empty session rather than trusted.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := sm.newSession()
			sess.ID = cookie.Value
			return sess, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		sess := sm.newSession()
		sess.ID = cookie.Value
		return sess, nil
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	sess.token = stored.Token
	sess.user = stored.User
	sess.expiresAt = stored.ExpiresAt
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	if sess.tokenExpiredLocked(sm.now()) {
		sess.clearAuthLocked()
	}
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed. The whole
// record is written with a single SET so readers never see a partial update.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.staleID != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.staleID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.staleID = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	now := sm.now()
	if sess.tokenExpiredLocked(now) {
		sess.clearAuthLocked()
	}

	ttl := sm.ttl
	if !sess.expiresAt.IsZero() {
		if remaining := sess.expiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sess.payloadLocked())
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  now.Add(ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.clearAuthLocked()
	sess.destroyed = true
}

// Renew moves the session to a fresh identifier, dropping the old record on
// commit. Called on login so a pre-login cookie never carries credentials.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.isNew && sess.ID != "" {
		sess.staleID = sess.ID
	}
	sess.ID = sm.generateSessionID()
	sess.dirty = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetAuth stores the credential token and the user profile together.
func (s *Session) SetAuth(token string, user access.UserProfile) error {
	if token == "" {
		return errors.New("session: empty token")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = string(raw)
	s.expiresAt = time.Time{}
	s.dirty = true
	return nil
}

// SetAuthExpiry bounds the authenticated state. Past this instant the session
// is treated as logged out.
func (s *Session) SetAuthExpiry(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return
	}
	s.expiresAt = t
	s.dirty = true
}

// Snapshot returns the stored identity. It returns ErrNoSession when nothing is
// stored and ErrMalformedSession when the stored pair is unusable; in the
// latter case both fields are cleared before returning.
func (s *Session) Snapshot() (access.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" && s.user == "" {
		return access.Identity{}, ErrNoSession
	}
	if s.token == "" || s.user == "" {
		s.clearAuthLocked()
		return access.Identity{}, ErrMalformedSession
	}
	var user access.UserProfile
	if err := json.Unmarshal([]byte(s.user), &user); err != nil {
		s.clearAuthLocked()
		return access.Identity{}, ErrMalformedSession
	}
	return access.Identity{Token: s.token, User: user}, nil
}

// Identity returns the stored identity, or false when there is none.
func (s *Session) Identity() (access.Identity, bool) {
	id, err := s.Snapshot()
	if err != nil {
		return access.Identity{}, false
	}
	return id, true
}

// IsAuthenticated reports whether a token survives the integrity check.
func (s *Session) IsAuthenticated() bool {
	_, ok := s.Identity()
	return ok
}

// Token returns the raw credential token, empty when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ClearAuth drops the token and the profile. Safe to call repeatedly.
func (s *Session) ClearAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearAuthLocked()
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (s *Session) clearAuthLocked() {
	if s.token == "" && s.user == "" && s.expiresAt.IsZero() {
		return
	}
	s.token = ""
	s.user = ""
	s.expiresAt = time.Time{}
	s.dirty = true
}

func (s *Session) tokenExpiredLocked(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

func (s *Session) payloadLocked() sessionPayload {
	return sessionPayload{
		Values:    s.values,
		Token:     s.token,
		User:      s.user,
		ExpiresAt: s.expiresAt,
		Flashes:   s.flashes,
	}
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
