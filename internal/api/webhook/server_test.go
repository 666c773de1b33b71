package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/api/graph"
	"github.com/lvdashuaibi/ballotbot/internal/ballot"
	"github.com/lvdashuaibi/ballotbot/internal/dispatch"
	"github.com/lvdashuaibi/ballotbot/internal/lock"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
	"github.com/lvdashuaibi/ballotbot/internal/model"
	"github.com/lvdashuaibi/ballotbot/internal/repository"
)

type quietNotifier struct{}

func (quietNotifier) PostPollItem(context.Context, string, string) error      { return nil }
func (quietNotifier) PostMessage(context.Context, string, string) error       { return nil }
func (quietNotifier) DirectMessage(context.Context, string, string) error     { return nil }
func (quietNotifier) DisableVoteButton(context.Context, string, string) error { return nil }

type failingHandler struct{}

func (failingHandler) Handle(context.Context, model.WebhookEvent) (dispatch.Reply, error) {
	return dispatch.Reply{}, errors.New("store unavailable")
}

type serverSuite struct {
	suite.Suite
	server *Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(serverSuite))
}

func (s *serverSuite) SetupTest() {
	ms := metrics.NewMetricService()
	engine := ballot.NewEngine(ballot.Options{
		Store:    repository.NewMemoryStore(),
		Gate:     ballot.NewGate(lock.NewLocalLock(), "ballot", time.Second, ms),
		Notifier: quietNotifier{},
		Metrics:  ms,
	})
	cfg := config.ServerConfig{Port: 0, WebhookPath: "/vote", GraphQLPath: "/graphql"}
	s.server = NewServer(cfg, "secret", dispatch.NewDispatcher(engine, ms), ms, graph.NewGraphQLServer(engine, cfg.GraphQLPath))
}

func (s *serverSuite) post(path, body string) *httptest.ResponseRecorder {
	return s.postWithAuth(path, body, "")
}

func (s *serverSuite) postWithAuth(path, body, auth string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	s.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (s *serverSuite) decode(rec *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *serverSuite) TestInvalidJSON() {
	rec := s.post("/vote", "{not json")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *serverSuite) TestBadToken() {
	rec := s.post("/vote", `{"token":"wrong","text":"!end_vote"}`)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.post("/vote", `{"text":"!end_vote"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *serverSuite) TestStartWithoutItems() {
	rec := s.post("/vote", `{"token":"secret","user_name":"alice","text":"!start_vote"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.decode(rec)["text"], "at least one nomination")
}

func (s *serverSuite) TestUnknownCommand() {
	rec := s.post("/vote", `{"token":" secret ","user_name":"alice","text":"hi"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(s.decode(rec)["text"], `"hi"`)
}

func (s *serverSuite) TestEmptyCommand() {
	for _, body := range []string{
		`{"token":"secret","user_name":"alice","text":""}`,
		`{"token":"secret","user_name":"alice","text":"  \n "}`,
		`{"token":"secret","user_name":"alice"}`,
	} {
		rec := s.post("/vote", body)
		s.Equal(http.StatusBadRequest, rec.Code, body)
		s.Equal("Invalid command format. Command text cannot be empty.", s.decode(rec)["text"])
	}
}

func (s *serverSuite) TestInteractiveFlow() {
	rec := s.post("/vote", `{"token":"secret","user_name":"alice","channel_id":"c1","text":"!start_vote\nMVP"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	// Interactive callbacks carry the token in the context only.
	rec = s.post("/vote", `{"user_name":"carol","post_id":"m1","context":{"action":"vote","item":"MVP","selected_option":"Bob","token":"secret"}}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("You selected: Bob", s.decode(rec)["ephemeral_text"])

	rec = s.post("/vote", `{"user_name":"carol","post_id":"m1","channel_id":"c1","context":{"action":"submit_vote","item":"MVP","token":"secret"}}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(s.decode(rec)["ephemeral_text"], "has been counted")

	rec = s.postWithAuth("/graphql", `{"query":"{ tally { item candidates { candidate votes } } }"}`, "Bearer secret")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"data":{"tally":[{"item":"MVP","candidates":[{"candidate":"Bob","votes":1}]}]}}`, rec.Body.String())

	rec = s.post("/vote", `{"token":"secret","user_name":"alice","text":"!end_vote"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(s.decode(rec)["text"], "- Bob: 1 vote")
}

func (s *serverSuite) TestGraphQLRequiresToken() {
	const query = `{"query":"{ tally { item } }"}`

	rec := s.post("/graphql", query)
	s.Equal(http.StatusForbidden, rec.Code)
	s.NotContains(rec.Body.String(), "data")

	rec = s.postWithAuth("/graphql", query, "Bearer wrong")
	s.Equal(http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	s.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	s.Equal(http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	s.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?token=secret", nil))
	s.Equal(http.StatusOK, rec.Code)

	rec = s.postWithAuth("/graphql", query, "Bearer secret")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"data":{"tally":[]}}`, rec.Body.String())
}

func (s *serverSuite) TestGraphQLDedicatedToken() {
	cfg := config.ServerConfig{WebhookPath: "/vote", GraphQLPath: "/graphql", GraphQLToken: "reader"}
	engine := ballot.NewEngine(ballot.Options{
		Store:    repository.NewMemoryStore(),
		Gate:     ballot.NewGate(lock.NewLocalLock(), "ballot", time.Second, nil),
		Notifier: quietNotifier{},
	})
	srv := NewServer(cfg, "secret", dispatch.NewDispatcher(engine, nil), nil, graph.NewGraphQLServer(engine, cfg.GraphQLPath))

	for auth, want := range map[string]int{"Bearer secret": http.StatusForbidden, "Bearer reader": http.StatusOK} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ tally { item } }"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", auth)
		srv.Engine().ServeHTTP(rec, req)
		s.Equal(want, rec.Code, auth)
	}
}

func (s *serverSuite) TestInternalError() {
	srv := NewServer(config.ServerConfig{WebhookPath: "/vote"}, "secret", failingHandler{}, nil, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/vote", strings.NewReader(`{"token":"secret","text":"x"}`)))
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *serverSuite) TestHealthAndMetrics() {
	rec := httptest.NewRecorder()
	s.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())

	s.post("/vote", `{"token":"secret","text":"what"}`)
	rec = httptest.NewRecorder()
	s.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), metrics.MetricUnknownCommands+" 1")
}
