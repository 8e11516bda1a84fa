package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Chat sends one message to the store assistant within a conversation.
func (c *Client) Chat(ctx context.Context, creds Credentials, conversationID, message string) (ChatReply, error) {
	var out ChatReply
	body := map[string]string{"session_id": conversationID, "message": message}
	err := c.do(ctx, creds, request{method: http.MethodPost, path: "/api/voice/chat", body: body}, &out)
	return out, err
}

// ResetChat forgets the conversation on the API side.
func (c *Client) ResetChat(ctx context.Context, creds Credentials, conversationID string) error {
	body := map[string]string{"session_id": conversationID}
	return c.do(ctx, creds, request{method: http.MethodPost, path: "/api/voice/reset-session", body: body}, nil)
}

// ChatHistory returns at most limit messages of a conversation.
func (c *Client) ChatHistory(ctx context.Context, creds Credentials, conversationID string, limit int) (ChatHistory, error) {
	var out ChatHistory
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}
	err := c.do(ctx, creds, request{
		method: http.MethodGet,
		path:   "/api/voice/history/" + url.PathEscape(conversationID),
		route:  "/api/voice/history/{id}",
		query:  query,
	}, &out)
	return out, err
}
