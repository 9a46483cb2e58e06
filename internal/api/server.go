package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/pipeline"
	"github.com/cortexchat/internal/trace"
)

const eventBuffer = 256

// Options configures the API server
type Options struct {
	Host      string
	Port      int
	RateLimit float64 // submissions per second, 0 disables limiting
	Burst     int
}

// Server exposes one conversation over HTTP
type Server struct {
	echo    *echo.Echo
	addr    string
	orch    *pipeline.Orchestrator
	limiter *rate.Limiter
}

// MessageRequest is the body of POST /api/v1/messages
type MessageRequest struct {
	Text string `json:"text"`
}

// ConversationResponse is a snapshot of the conversation
type ConversationResponse struct {
	Messages   []conversation.Message `json:"messages"`
	Phase      conversation.Phase     `json:"phase"`
	PhaseLabel string                 `json:"phase_label,omitempty"`
	Busy       bool                   `json:"busy"`
	Error      string                 `json:"error,omitempty"`
}

// NewServer creates a new API server
func NewServer(orch *pipeline.Orchestrator, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	server := &Server{
		echo:    e,
		addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		orch:    orch,
		limiter: limiter,
	}

	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.GET("/conversation", s.getConversation)
	v1.DELETE("/conversation", s.resetConversation)
	v1.POST("/messages", s.postMessage)
	v1.GET("/trace", s.getTrace)
	v1.GET("/events", s.streamEvents)
}

// Start serves until an interrupt, then shuts down gracefully
func (s *Server) Start() error {
	go func() {
		log.Info().Str("addr", s.addr).Msg("API server listening")
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

func (s *Server) snapshot() ConversationResponse {
	state := s.orch.State()
	phase := state.Phase()
	return ConversationResponse{
		Messages:   state.Messages(),
		Phase:      phase,
		PhaseLabel: phase.Label(),
		Busy:       s.orch.Busy(),
	}
}

func (s *Server) getConversation(c echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) resetConversation(c echo.Context) error {
	if err := s.orch.Reset(); err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// postMessage runs the full chain for one question and answers with the
// resulting conversation. Stage failures are part of the conversation, so
// they still produce 200.
func (s *Server) postMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, pipeline.ErrEmptyInput.Error())
	}
	if !s.limiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
	}

	// a disconnecting client does not abort the chain
	err := s.orch.Submit(context.WithoutCancel(c.Request().Context()), req.Text)
	if errors.Is(err, pipeline.ErrBusy) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	resp := s.snapshot()
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getTrace(c echo.Context) error {
	entries := s.orch.Recorder().Entries()
	if entries == nil {
		entries = make([]trace.Entry, 0)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// streamEvents relays conversation events as server-sent events until the
// client goes away
func (s *Server) streamEvents(c echo.Context) error {
	events := make(chan conversation.Event, eventBuffer)
	unsubscribe := s.orch.State().Subscribe(func(ev conversation.Event) {
		select {
		case events <- ev:
		default:
			log.Warn().Str("type", string(ev.Type)).Msg("Event stream client too slow, dropping event")
		}
	})
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
