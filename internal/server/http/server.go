package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-voiceloop/core"
	"github.com/koscakluka/ema-voiceloop/core/events"
	"github.com/koscakluka/ema-voiceloop/internal/commands"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxBodyBytes     = 64 << 10
	eventsBuffer     = 64
	writeWait        = 5 * time.Second
	shutdownDeadline = 5 * time.Second
)

// Server exposes the command surface over HTTP and streams events over a
// websocket.
type Server struct {
	dispatcher   *commands.Dispatcher
	orchestrator commands.Orchestrator
	echo         *echo.Echo
	upgrader     websocket.Upgrader
	handler      http.Handler
}

func NewServer(dispatcher *commands.Dispatcher, orchestrator commands.Orchestrator) *Server {
	s := &Server{
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		echo:         echo.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.HTTPErrorHandler = s.handleError
	s.register()

	s.handler = otelhttp.NewHandler(s.echo, "voiceloop.http")
	return s
}

func (s *Server) register() {
	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.echo.GET("/commands", s.listCommands)
	s.echo.GET("/commands/:name/schema", s.commandSchema)
	s.echo.POST("/commands/:name", s.runCommand)
	s.echo.GET("/state", s.state)
	s.echo.GET("/events", s.events)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}

type commandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listCommands(c echo.Context) error {
	names := s.dispatcher.Names()
	infos := make([]commandInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, commandInfo{Name: string(name), Description: s.dispatcher.Description(name)})
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *Server) commandSchema(c echo.Context) error {
	schema, ok := s.dispatcher.Schema(commands.Name(c.Param("name")))
	if !ok {
		return fmt.Errorf("%w: %q", commands.ErrUnknownCommand, c.Param("name"))
	}
	return c.Blob(http.StatusOK, "application/schema+json", schema)
}

func (s *Server) runCommand(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	result, err := s.dispatcher.Execute(c.Request().Context(), commands.Name(c.Param("name")), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type sessionResponse struct {
	ID               string `json:"id"`
	ConfirmationText string `json:"confirmationText"`
	PositiveCommand  string `json:"positiveCommand"`
	NegativeCommand  string `json:"negativeCommand"`
	Phase            string `json:"phase"`
	TriesUsed        int    `json:"triesUsed"`
	MaxTries         int    `json:"maxTries"`
	VoiceReply       string `json:"voiceReply,omitempty"`
	Cancelled        bool   `json:"cancelled,omitempty"`
}

type stateResponse struct {
	State   string           `json:"state"`
	Session *sessionResponse `json:"session,omitempty"`
}

func (s *Server) state(c echo.Context) error {
	response := stateResponse{State: s.orchestrator.TurnState().String()}
	if session, ok := s.orchestrator.Session(); ok {
		response.Session = newSessionResponse(session)
	}
	return c.JSON(http.StatusOK, response)
}

func newSessionResponse(session orchestration.ConfirmationSession) *sessionResponse {
	return &sessionResponse{
		ID:               session.ID,
		ConfirmationText: session.ConfirmationText,
		PositiveCommand:  session.PositiveCommand,
		NegativeCommand:  session.NegativeCommand,
		Phase:            session.Phase.String(),
		TriesUsed:        session.TriesUsed,
		MaxTries:         session.MaxTries,
		VoiceReply:       session.VoiceReply,
		Cancelled:        session.Cancelled,
	}
}

// events streams one flat JSON payload per event until the service stops or
// the client goes away.
func (s *Server) events(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	ctx, span := tracer.Start(c.Request().Context(), "voiceloop.http.events")
	defer span.End()

	stream, cancel := s.orchestrator.Subscribe(eventsBuffer)
	defer cancel()

	// The read loop only notices the client closing.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-clientGone:
			return nil
		case event, ok := <-stream:
			if !ok {
				deadline := time.Now().Add(writeWait)
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "service stopped"), deadline)
				return nil
			}
			if err := s.writeEvent(conn, event); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Warn("failed to write event", "kind", string(event.Kind()), "error", err)
				return nil
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, event events.Event) error {
	payload, err := events.MarshalPayload(event)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := err.Error()

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	case errors.Is(err, commands.ErrUnknownCommand):
		status = http.StatusNotFound
	case errors.Is(err, commands.ErrInvalidArguments), errors.Is(err, orchestration.ErrIncompleteIntent):
		status = http.StatusBadRequest
	case errors.Is(err, orchestration.ErrServiceNotStarted), errors.Is(err, orchestration.ErrConfirmationBusy):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		logger.Error("http request failed", "path", c.Path(), "error", err)
	}
	if err := c.JSON(status, errorResponse{Error: message}); err != nil {
		logger.Warn("failed to write error response", "error", err)
	}
}
