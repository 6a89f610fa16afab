// Package api is the client for the backend's HTTP interface: conversation
// lookup, timeline loads, and bot-message persistence.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Thanhpt21/chatsync-go/internal/store"
)

// Client talks to the chat backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListConversationIDs returns the conversation ids owned by a user, most
// recent first.
func (c *Client) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	body, err := c.request(ctx, http.MethodGet, "/chat/conversations?userId="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		ConversationIDs []string `json:"conversationIds"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return resp.ConversationIDs, nil
}

// ListMessages returns the ordered server timeline for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	body, err := c.request(ctx, http.MethodGet, "/chat/messages?conversationId="+url.QueryEscape(conversationID), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return resp.Messages, nil
}

// BotMessage is the body of a bot-message persistence call. Used for
// server-originated bot replies and for migrating guest bot messages.
type BotMessage struct {
	ConversationID string         `json:"conversationId"`
	Body           string         `json:"message"`
	UserID         string         `json:"userId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SaveBotMessage persists a bot-authored message.
func (c *Client) SaveBotMessage(ctx context.Context, msg BotMessage) error {
	_, err := c.request(ctx, http.MethodPost, "/chat/bot-message", msg)
	return err
}

func (c *Client) request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api %s %s: %d %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
