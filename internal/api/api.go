// Package api is the request/response client for the swipe backend. It serves
// initial loads, swipes and resynchronization; live updates arrive through the
// realtime package instead.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/session"
)

const (
	DefaultBaseURL = "http://localhost:3001/api"
	userAgent      = "spigell/swipe-sync"
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	BaseURL    string
}

func New(logger *zap.Logger, baseURL, token string, timeout time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		token:   token,
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	var user session.User
	if err := c.getJSON(ctx, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Candidates lists candidate profiles for recruiters.
func (c *Client) Candidates(ctx context.Context, filters *Filters) ([]session.User, error) {
	var users []session.User
	if err := c.getJSON(ctx, "/candidates", buildParams(filters), &users); err != nil {
		return nil, err
	}
	return users, nil
}

// JobOffers lists job offers for candidates.
func (c *Client) JobOffers(ctx context.Context, filters *Filters) ([]JobOffer, error) {
	var offers []JobOffer
	if err := c.getJSON(ctx, "/jobs", buildParams(filters), &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// Swipe records a like or pass. The idempotency key lets the server drop
// retried submissions of the same swipe.
func (c *Client) Swipe(ctx context.Context, req SwipeRequest) (*SwipeResult, error) {
	if req.TargetID == "" {
		return nil, fmt.Errorf("swipe: %w", ErrEmptyTarget)
	}
	if req.Key == "" {
		req.Key = uuid.NewString()
	}

	var result SwipeResult
	headers := map[string]string{"Idempotency-Key": req.Key}
	if err := c.sendJSON(ctx, http.MethodPost, "/swipes", req, headers, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Matches(ctx context.Context) ([]session.Match, error) {
	var matches []session.Match
	if err := c.getJSON(ctx, "/matches", nil, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (c *Client) Chats(ctx context.Context) ([]session.Chat, error) {
	var chats []session.Chat
	if err := c.getJSON(ctx, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) ChatMessages(ctx context.Context, chatID string) ([]session.Message, error) {
	var messages []session.Message
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if err := c.getJSON(ctx, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) Notifications(ctx context.Context) ([]session.Notification, error) {
	var list []session.Notification
	if err := c.getJSON(ctx, "/notifications", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	path := fmt.Sprintf("/notifications/%s/read", url.PathEscape(id))
	return c.sendJSON(ctx, http.MethodPut, path, nil, nil, nil)
}
