// Package webhook is the HTTP boundary: the Mattermost webhook endpoint plus
// health, metrics and the GraphQL read API, served by gin.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/api/graph"
	"github.com/lvdashuaibi/ballotbot/internal/dispatch"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// Handler runs one decoded webhook event.
type Handler interface {
	Handle(ctx context.Context, ev model.WebhookEvent) (dispatch.Reply, error)
}

type Server struct {
	cfg     config.ServerConfig
	token   string
	handler Handler
	metrics *metrics.MetricService
	graph   *graph.GraphQLServer

	engine *gin.Engine
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, token string, h Handler, ms *metrics.MetricService, gql *graph.GraphQLServer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, token: token, handler: h, metrics: ms, graph: gql}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	webhookPath := s.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/vote"
	}
	r.POST(webhookPath, s.handleWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.graph != nil && s.cfg.GraphQLPath != "" {
		gql := r.Group(s.cfg.GraphQLPath, s.requireGraphQLToken())
		gql.POST("", gin.WrapH(s.graph.Handler()))
		gql.GET("", gin.WrapH(s.graph.Playground()))
	}
	return r
}

// Engine exposes the router for tests and embedding.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleWebhook(c *gin.Context) {
	var ev model.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		logging.Logger.Warnw("malformed webhook payload", "error", err)
		c.String(http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if !s.authorized(ev.AuthToken()) {
		logging.Logger.Warnw("webhook token rejected", "user", ev.UserName)
		c.String(http.StatusForbidden, "Invalid token")
		return
	}

	reply, err := s.handler.Handle(c.Request.Context(), ev)
	if err != nil {
		logging.Logger.Errorw("webhook handling failed", "user", ev.UserName, "error", err)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if reply.Ephemeral {
		c.JSON(status, gin.H{"ephemeral_text": reply.Text})
		return
	}
	c.JSON(status, gin.H{"text": reply.Text})
}

// requireGraphQLToken accepts "Authorization: Bearer <token>" or a token
// query parameter. The GraphQL token defaults to the webhook token.
func (s *Server) requireGraphQLToken() gin.HandlerFunc {
	want := s.cfg.GraphQLToken
	if strings.TrimSpace(want) == "" {
		want = s.token
	}
	return func(c *gin.Context) {
		got := c.Query("token")
		if auth := c.GetHeader("Authorization"); auth != "" {
			got = strings.TrimPrefix(auth, "Bearer ")
		}
		if !tokenMatches(got, want) {
			logging.Logger.Warnw("graphql token rejected", "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) authorized(token string) bool {
	return tokenMatches(token, s.token)
}

func tokenMatches(token, expected string) bool {
	got := strings.TrimSpace(token)
	want := strings.TrimSpace(expected)
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Logger.Infow("http server listening", "addr", s.http.Addr, "webhook", s.cfg.WebhookPath, "graphql", s.cfg.GraphQLPath)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
