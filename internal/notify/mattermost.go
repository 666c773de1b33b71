// Package notify delivers ballot messages to Mattermost over its REST API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
)

const apiPrefix = "/api/v4"

// APIError is a non-2xx reply from the Mattermost API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mattermost %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Client struct {
	baseURL      string
	botToken     string
	botUsername  string
	callbackURL  string
	webhookToken string
	directory    Directory

	http      *http.Client
	retryOpts []retry.Option

	mu      sync.Mutex
	userIDs map[string]string
}

// NewClient builds a client for cfg. webhookToken is embedded in every
// interactive action so callbacks authenticate like outgoing webhooks.
func NewClient(cfg config.MattermostConfig, webhookToken string, dir Directory) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	if dir == nil {
		dir = StaticDirectory(nil)
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.APIURL, "/"),
		botToken:     cfg.BotToken,
		botUsername:  cfg.BotUsername,
		callbackURL:  cfg.CallbackURL,
		webhookToken: webhookToken,
		directory:    dir,
		http:         &http.Client{Timeout: timeout},
		retryOpts: []retry.Option{
			retry.Attempts(attempts),
			retry.Delay(200 * time.Millisecond),
			retry.LastErrorOnly(true),
		},
		userIDs: make(map[string]string),
	}
}

// PostPollItem posts the interactive message for one nomination.
func (c *Client) PostPollItem(ctx context.Context, channelID, item string) error {
	candidates, err := c.directory.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("load candidates: %w", err)
	}
	p := pollItemPost(channelID, item, c.callbackURL, c.webhookToken, candidates)
	return c.do(ctx, http.MethodPost, "/posts", p, nil)
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	return c.do(ctx, http.MethodPost, "/posts", post{ChannelID: channelID, Message: text}, nil)
}

// DirectMessage opens (or reuses) the direct channel between the bot and
// username and posts text there.
func (c *Client) DirectMessage(ctx context.Context, username, text string) error {
	botID, err := c.userID(ctx, c.botUsername)
	if err != nil {
		return err
	}
	userID, err := c.userID(ctx, username)
	if err != nil {
		return err
	}

	var channel struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/channels/direct", []string{botID, userID}, &channel); err != nil {
		return fmt.Errorf("open direct channel with %s: %w", username, err)
	}
	return c.PostMessage(ctx, channel.ID, text)
}

// DisableVoteButton rewrites the poll-item message so the voter sees the
// button greyed out.
func (c *Client) DisableVoteButton(ctx context.Context, messageID, item string) error {
	path := "/posts/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodPut, path, votedPost(messageID, item), nil)
}

func (c *Client) userID(ctx context.Context, username string) (string, error) {
	c.mu.Lock()
	id, ok := c.userIDs[username]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/username/"+url.PathEscape(username), nil, &user); err != nil {
		return "", fmt.Errorf("look up user %s: %w", username, err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("look up user %s: empty id", username)
	}

	c.mu.Lock()
	c.userIDs[username] = user.ID
	c.mu.Unlock()
	return user.ID, nil
}

// do sends one API request, retrying transport errors and 5xx replies.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	opts := append([]retry.Option{retry.Context(ctx)}, c.retryOpts...)
	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.botToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.botToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(msg)}
			logging.Logger.Debugw("mattermost request failed", "method", method, "path", path, "status", resp.StatusCode)
			if resp.StatusCode < 500 {
				return retry.Unrecoverable(apiErr)
			}
			return apiErr
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Unrecoverable(fmt.Errorf("decode %s reply: %w", path, err))
		}
		return nil
	}, opts...)
}
