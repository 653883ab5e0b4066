// Package webhook exposes an inbound HTTP surface: a message endpoint for
// platforms or scripts that push events over plain HTTP instead of a live
// socket, plus a health probe.
package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/refinement-bot/refinery/internal/chat"
)

// Handler consumes inbound messages delivered over HTTP.
type Handler interface {
	Handle(ctx context.Context, msg chat.InboundMessage)
}

// StartOpts holds configuration for the webhook server.
type StartOpts struct {
	Addr    string // defaults to ":8080"
	Token   string // shared token checked on every message request
	Handler Handler
}

// messagePayload is the JSON body of POST /webhook.
type messagePayload struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

// Start launches the webhook HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Handler == nil {
		return fmt.Errorf("webhook: handler is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts)

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// NewRouter builds the Gin router. Split from Start for testing.
func NewRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", handleHealth())
	router.POST("/webhook", requireToken(opts.Token), handleMessage(opts.Handler))
	return router
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// requireToken rejects requests whose X-Refinery-Token header does not match
// the configured shared token. An empty configured token disables the check.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			return
		}
		got := c.GetHeader("X-Refinery-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		}
	}
}

func handleMessage(handler Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload messagePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		platform := payload.Platform
		if platform == "" {
			platform = "webhook"
		}
		handler.Handle(c.Request.Context(), chat.InboundMessage{
			Platform:  platform,
			ChannelID: payload.ChannelID,
			UserID:    payload.UserID,
			UserName:  payload.UserName,
			Text:      payload.Text,
			Timestamp: time.Now(),
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}
