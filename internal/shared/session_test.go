package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedesk/storedesk/internal/access"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func sampleUser() access.UserProfile {
	return access.UserProfile{
		ID:        3,
		Username:  "maria",
		FullName:  "Maria Silva",
		Email:     "maria@store.local",
		Role:      access.RoleAdmin,
		IsActive:  true,
		CreatedAt: access.NewTimestamp(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
}

func loadWithCookie(t *testing.T, sm *SessionManager, id string) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != "" {
		req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: id})
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sm.Commit(context.Background(), rr, req, sess))
	return rr
}

func TestSetAuthRoundTripsThroughRedis(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	require.NoError(t, sess.SetAuth("tok-1", sampleUser()))
	commit(t, sm, sess)

	reloaded := loadWithCookie(t, sm, sess.ID)
	id, err := reloaded.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", id.Token)
	assert.Equal(t, sampleUser(), id.User)
	assert.True(t, reloaded.IsAuthenticated())
}

func TestSetAuthRejectsEmptyToken(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	assert.Error(t, sess.SetAuth("", sampleUser()))
	assert.False(t, sess.IsAuthenticated())
}

func TestClearAuthIsIdempotent(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	require.NoError(t, sess.SetAuth("tok", sampleUser()))

	sess.ClearAuth()
	first, firstErr := sess.Snapshot()
	sess.ClearAuth()
	second, secondErr := sess.Snapshot()

	assert.Equal(t, first, second)
	assert.ErrorIs(t, firstErr, ErrNoSession)
	assert.ErrorIs(t, secondErr, ErrNoSession)
	assert.Empty(t, sess.Token())
}

func TestMalformedUserFailsSafeAndSticks(t *testing.T) {
	sm, mr := newTestManager(t)
	require.NoError(t, mr.Set("session:broken", `{"values":{},"token":"tok","user":"{not-json","flashes":null}`))

	sess := loadWithCookie(t, sm, "broken")
	_, err := sess.Snapshot()
	assert.ErrorIs(t, err, ErrMalformedSession)

	_, err = sess.Snapshot()
	assert.ErrorIs(t, err, ErrNoSession, "second read must still be logged out")
	assert.Empty(t, sess.Token(), "token must be cleared with the profile")

	commit(t, sm, sess)
	reloaded := loadWithCookie(t, sm, "broken")
	assert.False(t, reloaded.IsAuthenticated(), "cleared state must be persisted")
}

func TestTokenWithoutProfileIsNotTrusted(t *testing.T) {
	sm, mr := newTestManager(t)
	require.NoError(t, mr.Set("session:half", `{"values":{},"token":"tok","flashes":null}`))

	sess := loadWithCookie(t, sm, "half")
	assert.False(t, sess.IsAuthenticated())
	assert.Empty(t, sess.Token())
}

func TestCorruptedRecordYieldsEmptySession(t *testing.T) {
	sm, mr := newTestManager(t)
	require.NoError(t, mr.Set("session:garbage", `not json at all`))

	sess := loadWithCookie(t, sm, "garbage")
	assert.Equal(t, "garbage", sess.ID)
	assert.False(t, sess.IsAuthenticated())
}

func TestAuthExpiryLogsOut(t *testing.T) {
	sm, mr := newTestManager(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	sess := loadWithCookie(t, sm, "")
	require.NoError(t, sess.SetAuth("tok", sampleUser()))
	sess.SetAuthExpiry(now.Add(10 * time.Minute))
	commit(t, sm, sess)

	ttl := mr.TTL("session:" + sess.ID)
	assert.Equal(t, 10*time.Minute, ttl, "redis ttl bounded by token expiry")

	now = now.Add(11 * time.Minute)
	reloaded := loadWithCookie(t, sm, sess.ID)
	assert.False(t, reloaded.IsAuthenticated())
}

func TestRenewDropsOldRecord(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	commit(t, sm, sess)
	oldID := sess.ID

	reloaded := loadWithCookie(t, sm, oldID)
	sm.Renew(reloaded)
	require.NoError(t, reloaded.SetAuth("tok", sampleUser()))
	commit(t, sm, reloaded)

	assert.NotEqual(t, oldID, reloaded.ID)
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+reloaded.ID))
}

func TestDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	require.NoError(t, sess.SetAuth("tok", sampleUser()))
	commit(t, sm, sess)

	sm.Destroy(sess)
	rr := commit(t, sm, sess)

	assert.False(t, mr.Exists("session:"+sess.ID))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestConcurrentClearAndReadNeverSplitsThePair(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	require.NoError(t, sess.SetAuth("tok", sampleUser()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sess.ClearAuth()
		}()
		go func() {
			defer wg.Done()
			id, err := sess.Snapshot()
			if err == nil {
				assert.Equal(t, "tok", id.Token)
				assert.Equal(t, access.RoleAdmin, id.User.Role)
			}
		}()
	}
	wg.Wait()
	assert.False(t, sess.IsAuthenticated())
}

func TestFlashSurvivesRedirect(t *testing.T) {
	sm, _ := newTestManager(t)
	sess := loadWithCookie(t, sm, "")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "saved"})
	commit(t, sm, sess)

	reloaded := loadWithCookie(t, sm, sess.ID)
	flash := reloaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "saved", flash.Message)
	assert.Nil(t, reloaded.PopFlash())
}
