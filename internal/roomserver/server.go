// Package roomserver is a small chat room server for local development: paged history
// over HTTP and live pushes over a websocket.
package roomserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/chatapi"
	"github.com/tOgg1/roomline/internal/history"
	"github.com/tOgg1/roomline/internal/logging"
	"github.com/tOgg1/roomline/internal/timeline"
)

// Error codes carried in the response envelope.
const (
	CodeBadRequest = 400
	CodeNotFound   = 404
	CodeInternal   = 500
)

type Option func(*Server)

// WithToken requires clients to present token, as a bearer header or a token query
// parameter.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

type Server struct {
	repo     *history.Repository
	hub      *Hub
	token    string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewServer(repo *history.Repository, opts ...Option) *Server {
	s := &Server{
		repo:   repo,
		hub:    NewHub(),
		logger: logging.Component("roomserver"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(s.requestLogger(), gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)

	authed := engine.Group("/", s.requireToken())
	authed.GET(chatapi.PagePath, s.handlePage)
	authed.POST(chatapi.SendPath, s.handleSend)
	authed.GET(chatapi.WebsocketPath, s.handleWebsocket)
	return engine
}

// Run serves on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("room server listening")

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.hub.Count()})
}

func (s *Server) handlePage(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Query("roomId"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "roomId required")
		return
	}
	pageSize := timeline.DefaultPageSize
	if raw := c.Query("pageSize"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize <= 0 {
			fail(c, http.StatusBadRequest, CodeBadRequest, "invalid pageSize")
			return
		}
	}

	page, err := s.repo.Page(c.Request.Context(), roomID, c.Query("cursor"), pageSize)
	switch {
	case errors.Is(err, history.ErrInvalidCursor), errors.Is(err, chat.ErrInvalidRoom):
		fail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Int64("room_id", roomID).Msg("page query failed")
		fail(c, http.StatusInternalServerError, CodeInternal, "history unavailable")
		return
	}

	list := page.Messages
	if list == nil {
		list = []chat.Message{}
	}
	c.JSON(http.StatusOK, chatapi.Envelope[chatapi.PageData]{
		Success: true,
		Data:    &chatapi.PageData{List: list, Cursor: page.Cursor, IsLast: page.IsLast},
	})
}

func (s *Server) handleSend(c *gin.Context) {
	var req chatapi.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()

	msg := chat.Message{
		RoomID:   req.RoomID,
		FromUser: chat.User{UID: req.UID, Username: req.Username},
		Body:     req.Body,
		Type:     chat.MessageTypeText,
	}
	if body, err := chat.NormalizeBody(req.Body); err == nil {
		msg.Body = body
	}
	if req.ReplyID > 0 {
		parent, err := s.repo.Get(ctx, req.ReplyID)
		if errors.Is(err, history.ErrMessageNotFound) || (err == nil && parent.RoomID != req.RoomID) {
			fail(c, http.StatusNotFound, CodeNotFound, "reply target not found")
			return
		}
		if err != nil {
			fail(c, http.StatusInternalServerError, CodeInternal, "history unavailable")
			return
		}
		msg.Reply = &chat.ReplyRef{ID: parent.ID, Username: parent.FromUser.Username, Body: parent.Preview()}
	}

	if err := s.repo.Append(ctx, &msg); err != nil {
		if isValidationError(err) {
			fail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("append failed")
		fail(c, http.StatusInternalServerError, CodeInternal, "history unavailable")
		return
	}

	frame, err := chatapi.MessageFrame(msg)
	if err == nil {
		delivered := s.hub.Broadcast(msg.RoomID, frame)
		s.logger.Debug().Int64("id", msg.ID).Int64("room_id", msg.RoomID).Int("delivered", delivered).Msg("message broadcast")
	}
	c.JSON(http.StatusOK, chatapi.Envelope[chat.Message]{Success: true, Data: &msg})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	var roomID int64
	if raw := c.Query("roomId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			fail(c, http.StatusBadRequest, CodeBadRequest, "invalid roomId")
			return
		}
		roomID = id
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.serve(s.hub.register(conn, roomID))
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			if header := c.GetHeader("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
				got = header[7:]
			}
		}
		if got != s.token {
			fail(c, http.StatusUnauthorized, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", logging.Redact(c.Request.URL.RequestURI())).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func fail(c *gin.Context, status, code int, msg string) {
	c.JSON(status, chatapi.Envelope[struct{}]{Success: false, ErrCode: code, ErrMsg: msg})
}

func isValidationError(err error) bool {
	for _, target := range []error{
		chat.ErrInvalidMessage,
		chat.ErrInvalidRoom,
		chat.ErrInvalidUser,
		chat.ErrEmptyBody,
		chat.ErrBodyTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
