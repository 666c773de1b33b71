package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/ballotbot/config"
)

type recorded struct {
	Method string
	Path   string
	Body   []byte
	Auth   string
}

// fakeMattermost serves the subset of API v4 the client uses.
type fakeMattermost struct {
	mu        sync.Mutex
	requests  []recorded
	userHits  atomic.Int32
	postFails atomic.Int32
}

func (f *fakeMattermost) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v4/users/username/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r, nil)
		f.userHits.Add(1)
		name := r.PathValue("name")
		if name == "ghost" {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "id-" + name})
	})
	mux.HandleFunc("POST /api/v4/channels/direct", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		f.record(r, &ids)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "dm-" + ids[1]})
	})
	mux.HandleFunc("POST /api/v4/posts", func(w http.ResponseWriter, r *http.Request) {
		f.record(r, nil)
		if f.postFails.Load() > 0 {
			f.postFails.Add(-1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"post1"}`))
	})
	mux.HandleFunc("PUT /api/v4/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r, nil)
		_, _ = w.Write([]byte(`{}`))
	})
	return mux
}

func (f *fakeMattermost) record(r *http.Request, into interface{}) {
	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)
	if into != nil {
		_ = json.Unmarshal(body, into)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: body, Auth: r.Header.Get("Authorization")})
}

func (f *fakeMattermost) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, candidates ...string) (*Client, *fakeMattermost) {
	t.Helper()
	fake := &fakeMattermost{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c := NewClient(config.MattermostConfig{
		APIURL:         srv.URL,
		BotToken:       "bot-token",
		BotUsername:    "ballotbot",
		CallbackURL:    "http://bot.local/vote",
		RequestTimeout: time.Second,
		RetryAttempts:  3,
	}, "hook-secret", StaticDirectory(candidates))
	c.retryOpts = append(c.retryOpts, retry.Delay(time.Millisecond))
	return c, fake
}

func TestPostPollItem(t *testing.T) {
	c, fake := newTestClient(t, "Bob", " ", "Ann")

	require.NoError(t, c.PostPollItem(context.Background(), "town-square", "MVP"))

	req := fake.last()
	require.Equal(t, "/api/v4/posts", req.Path)
	require.Equal(t, "Bearer bot-token", req.Auth)

	var p post
	require.NoError(t, json.Unmarshal(req.Body, &p))
	require.Equal(t, "town-square", p.ChannelID)
	require.Len(t, p.Props.Attachments, 1)
	actions := p.Props.Attachments[0].Actions
	require.Len(t, actions, 2)

	require.Equal(t, "select", actions[0].Type)
	require.Equal(t, []option{{Text: "Bob", Value: "Bob"}, {Text: "Ann", Value: "Ann"}}, actions[0].Options)
	require.Equal(t, map[string]string{"action": ActionVote, "item": "MVP", "token": "hook-secret"}, actions[0].Integration.Context)
	require.Equal(t, "http://bot.local/vote", actions[0].Integration.URL)

	require.Equal(t, "button", actions[1].Type)
	require.Equal(t, "primary", actions[1].Style)
	require.Equal(t, ActionSubmitVote, actions[1].Integration.Context["action"])
}

func TestPostPollItemUsesUserList(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.PostPollItem(context.Background(), "town-square", "MVP"))

	var p post
	require.NoError(t, json.Unmarshal(fake.last().Body, &p))
	require.Equal(t, "users", p.Props.Attachments[0].Actions[0].DataSource)
	require.Empty(t, p.Props.Attachments[0].Actions[0].Options)
}

func TestDirectMessageCachesUserIDs(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.DirectMessage(ctx, "alice", "hello"))
	require.NoError(t, c.DirectMessage(ctx, "alice", "again"))
	require.EqualValues(t, 2, fake.userHits.Load())

	var p post
	require.NoError(t, json.Unmarshal(fake.last().Body, &p))
	require.Equal(t, "dm-id-alice", p.ChannelID)
	require.Equal(t, "again", p.Message)
}

func TestDirectMessageUnknownUser(t *testing.T) {
	c, fake := newTestClient(t)

	err := c.DirectMessage(context.Background(), "ghost", "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	// 4xx replies are not retried.
	require.EqualValues(t, 2, fake.userHits.Load())
}

func TestPostMessageRetriesServerErrors(t *testing.T) {
	c, fake := newTestClient(t)
	fake.postFails.Store(2)

	require.NoError(t, c.PostMessage(context.Background(), "town-square", "hi"))
	require.Len(t, fake.requests, 3)
}

func TestPostMessageGivesUp(t *testing.T) {
	c, fake := newTestClient(t)
	fake.postFails.Store(10)

	err := c.PostMessage(context.Background(), "town-square", "hi")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestDisableVoteButton(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.DisableVoteButton(context.Background(), "post1", "MVP"))
	req := fake.last()
	require.Equal(t, http.MethodPut, req.Method)
	require.Equal(t, "/api/v4/posts/post1", req.Path)

	var p post
	require.NoError(t, json.Unmarshal(req.Body, &p))
	require.Equal(t, "post1", p.ID)
	require.True(t, p.Props.Attachments[0].Actions[0].Disabled)
	require.Equal(t, "Nomination: MVP", p.Props.Attachments[0].Text)
}
