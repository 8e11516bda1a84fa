package assistant

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/webtest"
)

type fakeAPI struct {
	mu       sync.Mutex
	sessions []string
	resets   []string
	reject   bool
	reply    map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if f.reject {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "Could not validate credentials"})
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/api/voice/chat":
		id, _ := body["session_id"].(string)
		f.sessions = append(f.sessions, id)
		out := map[string]any{"response": "Rice has 3 units in stock.", "session_id": id}
		for k, v := range f.reply {
			out[k] = v
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.URL.Path == "/api/voice/reset-session":
		id, _ := body["session_id"].(string)
		f.resets = append(f.resets, id)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	case strings.HasPrefix(r.URL.Path, "/api/voice/history/"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id": strings.TrimPrefix(r.URL.Path, "/api/voice/history/"),
			"messages": []map[string]any{
				{"role": "system", "content": "prompt"},
				{"role": "user", "content": "stock of rice?"},
				{"role": "assistant", "content": "3 units."},
			},
			"count": 3,
		})
	default:
		http.NotFound(w, r)
	}
}

func newRouter(t *testing.T, api *fakeAPI) (chi.Router, *webtest.Env) {
	t.Helper()
	env := webtest.New(t, api)
	r := chi.NewRouter()
	NewHandler(nil, env.Client, env.Pages, env.Guard).MountRoutes(r)
	return r, env
}

func chatRequest(t *testing.T, env *webtest.Env, message string, user *access.UserProfile) (*http.Request, *shared.Session) {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"message": message})
	require.NoError(t, err)
	return env.RequestBody(http.MethodPost, "/assistant/chat", bytes.NewReader(raw), "application/json", user)
}

func TestChatKeepsConversationInSession(t *testing.T) {
	api := &fakeAPI{}
	router, env := newRouter(t, api)

	req, sess := chatRequest(t, env, "how much rice is left?", webtest.User(access.RoleUser))
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	var reply Reply
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &reply))
	assert.Equal(t, "Rice has 3 units in stock.", reply.Reply)
	assert.Empty(t, reply.PrintURL)

	id := sess.Get(shared.AssistantConversationKey)
	require.NotEmpty(t, id)
	assert.Equal(t, []string{id}, api.sessions)
	assert.Equal(t, id, Conversation(sess))
}

func TestChatLinksCreatedBill(t *testing.T) {
	api := &fakeAPI{reply: map[string]any{"action_performed": "create_bill", "data": map[string]any{"bill_id": 17}}}
	router, env := newRouter(t, api)

	req, _ := chatRequest(t, env, "sell two bags of rice", webtest.User(access.RoleUser))
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	var reply Reply
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &reply))
	assert.Equal(t, "create_bill", reply.Action)
	assert.Equal(t, "/print-bill/17", reply.PrintURL)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	api := &fakeAPI{}
	router, env := newRouter(t, api)

	req, _ := chatRequest(t, env, "   ", webtest.User(access.RoleUser))
	res := webtest.Serve(router, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	assert.Contains(t, res.Body.String(), `"detail":"Say or type something first."`)
	assert.Contains(t, res.Body.String(), `"title":"Validation Failed"`)
	assert.Empty(t, api.sessions)
}

func TestChatRejectsOverlongMessage(t *testing.T) {
	api := &fakeAPI{}
	router, env := newRouter(t, api)

	req, _ := chatRequest(t, env, strings.Repeat("x", maxMessageSize+1), webtest.User(access.RoleUser))
	res := webtest.Serve(router, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "That message is too long.")
	assert.Empty(t, api.sessions)
}

func TestChatWithoutSessionAnswersJSON401(t *testing.T) {
	router, env := newRouter(t, &fakeAPI{})

	req, _ := chatRequest(t, env, "hello", nil)
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), `"redirect":"/login"`)
}

func TestRejectedTokenSignsOutAndRedirects(t *testing.T) {
	router, env := newRouter(t, &fakeAPI{reject: true})

	req, sess := chatRequest(t, env, "hello", webtest.User(access.RoleAdmin))
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), `"redirect":"/login"`)
	assert.False(t, sess.IsAuthenticated())
	assert.Equal(t, []string{shared.AuditAuthRejected}, env.Audit.Actions())
}

func TestHistoryDropsSystemPrompt(t *testing.T) {
	router, env := newRouter(t, &fakeAPI{})

	req, sess := env.Request(http.MethodGet, "/assistant/history", nil, webtest.User(access.RoleUser))
	sess.Set(shared.AssistantConversationKey, "conv-1")
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	var hist History
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &hist))
	assert.Equal(t, []Message{{Role: "user", Content: "stock of rice?"}, {Role: "assistant", Content: "3 units."}}, hist.Messages)
}

func TestHistoryWithoutConversationIsEmpty(t *testing.T) {
	router, env := newRouter(t, &fakeAPI{})

	req, _ := env.Request(http.MethodGet, "/assistant/history", nil, webtest.User(access.RoleUser))
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"messages":[]}`, res.Body.String())
}

func TestResetForgetsConversation(t *testing.T) {
	api := &fakeAPI{}
	router, env := newRouter(t, api)

	req, sess := env.Request(http.MethodPost, "/assistant/reset", nil, webtest.User(access.RoleUser))
	sess.Set(shared.AssistantConversationKey, "conv-1")
	res := webtest.Serve(router, req)

	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, []string{"conv-1"}, api.resets)
	assert.Empty(t, sess.Get(shared.AssistantConversationKey))
}

func TestAssistantPageRenders(t *testing.T) {
	router, env := newRouter(t, &fakeAPI{})

	req, _ := env.Request(http.MethodGet, "/assistant", nil, webtest.User(access.RoleUser))
	res := webtest.Serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Store assistant")
	assert.Contains(t, res.Body.String(), `data-chat="/assistant/chat"`)
}

func TestPrintURL(t *testing.T) {
	action := "create_bill"
	other := "check_product_stock"

	assert.Empty(t, PrintURL(apiclient.ChatReply{}))
	assert.Empty(t, PrintURL(apiclient.ChatReply{ActionPerformed: &other}))
	assert.Equal(t, "/bill-history", PrintURL(apiclient.ChatReply{ActionPerformed: &action}))
	assert.Equal(t, "/print-bill/9", PrintURL(apiclient.ChatReply{ActionPerformed: &action, Data: map[string]any{"bill_id": "9"}}))
	assert.Equal(t, "/bill-history", PrintURL(apiclient.ChatReply{ActionPerformed: &action, Data: map[string]any{"bill_id": "../x"}}))
}
