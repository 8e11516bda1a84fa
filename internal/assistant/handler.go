// Package assistant proxies the store assistant chat for the widget shown on
// every signed-in page. Speech capture and playback happen in the browser.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/platform/httpx"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/view"
)

const (
	historyLimit   = 50
	maxMessageSize = 2000
)

// Chat is the part of the API the assistant uses.
type Chat interface {
	Chat(ctx context.Context, creds apiclient.Credentials, conversationID, message string) (apiclient.ChatReply, error)
	ResetChat(ctx context.Context, creds apiclient.Credentials, conversationID string) error
	ChatHistory(ctx context.Context, creds apiclient.Credentials, conversationID string, limit int) (apiclient.ChatHistory, error)
}

// Handler serves the assistant page and its JSON endpoints.
type Handler struct {
	logger *slog.Logger
	chat   Chat
	pages  *view.Pages
	guard  *guard.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, chat Chat, pages *view.Pages, g *guard.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, chat: chat, pages: pages, guard: g}
}

// MountRoutes registers assistant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(access.ViewAssistant)).Get("/assistant", h.page)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireJSON(access.ViewAssistant))
		r.Post("/assistant/chat", h.send)
		r.Post("/assistant/reset", h.reset)
		r.Get("/assistant/history", h.history)
	})
}

// Reply is the answer to one chat message.
type Reply struct {
	Reply    string `json:"reply"`
	Action   string `json:"action,omitempty"`
	PrintURL string `json:"print_url,omitempty"`
}

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the conversation so far.
type History struct {
	Messages []Message `json:"messages"`
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/assistant.html", "Assistant", nil)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, httpx.Invalid("The message could not be read."))
		return
	}
	msg := strings.TrimSpace(in.Message)
	switch {
	case msg == "":
		httpx.RespondError(w, httpx.Invalid("Say or type something first."))
		return
	case len(msg) > maxMessageSize:
		httpx.RespondError(w, httpx.Invalid("That message is too long."))
		return
	}
	sess := shared.SessionFromContext(r.Context())
	conversation := Conversation(sess)

	out, err := h.chat.Chat(r.Context(), view.Credentials(r), conversation, msg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reply := Reply{Reply: out.Response, PrintURL: PrintURL(out)}
	if out.ActionPerformed != nil {
		reply.Action = *out.ActionPerformed
		h.logger.Info("assistant action", slog.String("action", reply.Action), slog.String("conversation", conversation))
	}
	httpx.JSON(w, http.StatusOK, reply)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if id := sess.Get(shared.AssistantConversationKey); id != "" {
			if err := h.chat.ResetChat(r.Context(), view.Credentials(r), id); err != nil {
				h.fail(w, r, err)
				return
			}
		}
		sess.Delete(shared.AssistantConversationKey)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	out := History{Messages: []Message{}}
	var id string
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		id = sess.Get(shared.AssistantConversationKey)
	}
	if id == "" {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	hist, err := h.chat.ChatHistory(r.Context(), view.Credentials(r), id, historyLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, m := range hist.Messages {
		if m.Role == "system" {
			continue
		}
		out.Messages = append(out.Messages, Message{Role: m.Role, Content: m.Content})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// fail answers a rejected token with the login location the widget follows.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apiclient.ErrAuthRejected) {
		h.pages.RecordForcedLogout(r)
		httpx.JSON(w, http.StatusUnauthorized, guard.Redirection{Detail: apiclient.Message(err), Redirect: access.LoginPath})
		return
	}
	h.logger.Warn("assistant call failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

// Conversation returns the assistant conversation id of sess, creating one on
// first use.
func Conversation(sess *shared.Session) string {
	if sess == nil {
		return uuid.NewString()
	}
	if id := sess.Get(shared.AssistantConversationKey); id != "" {
		return id
	}
	id := uuid.NewString()
	sess.Set(shared.AssistantConversationKey, id)
	return id
}

// PrintURL links the bill an assistant action created, if any.
func PrintURL(reply apiclient.ChatReply) string {
	if reply.ActionPerformed == nil || *reply.ActionPerformed != "create_bill" {
		return ""
	}
	switch id := reply.Data["bill_id"].(type) {
	case float64:
		return fmt.Sprintf("/print-bill/%d", int64(id))
	case string:
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
			return "/print-bill/" + id
		}
	}
	return "/bill-history"
}
