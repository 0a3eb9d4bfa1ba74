package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/usecase"
)

const (
	actionConnect     = "connect"
	actionReset       = "game:reset"
	actionResetScores = "game:reset-scores"
	actionMode        = "game:mode"
	actionSymbol      = "game:symbol"
	actionTurn        = "game:turn"
	actionAIMove      = "game:ai-move"
	actionLeave       = "game:leave"
	actionError       = "error"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	CreateSession(ctx context.Context) (*entity.Game, error)
	GetSession(ctx context.Context, sessionID string) (*entity.Game, error)

	Reset(ctx context.Context, sessionID string) (*usecase.Result, error)
	ResetScores(ctx context.Context, sessionID string) (*usecase.Result, error)
	SetMode(ctx context.Context, sessionID string, mode entity.Mode) (*usecase.Result, error)
	ChooseSymbol(ctx context.Context, sessionID string, mark entity.Mark) (*usecase.Result, error)
	MakeTurn(ctx context.Context, sessionID string, cell int) (*usecase.Result, error)
	RequestAIMove(ctx context.Context, sessionID string) (*usecase.Result, error)

	Subscribe(ctx context.Context, sessionID string) (<-chan entity.Event, func(), error)
}

type Server struct {
	logger   *slog.Logger
	manager  gameManager
	upgrader websocket.Upgrader

	handlers map[string]func(ctx context.Context, client *client, msg *Message) error
}

func New(logger *slog.Logger, manager gameManager) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		handlers: make(map[string]func(context.Context, *client, *Message) error),
	}

	server.handlers[actionConnect] = server.handleConnect
	server.handlers[actionReset] = server.handleReset
	server.handlers[actionResetScores] = server.handleResetScores
	server.handlers[actionMode] = server.handleMode
	server.handlers[actionSymbol] = server.handleSymbol
	server.handlers[actionTurn] = server.handleGameTurn
	server.handlers[actionAIMove] = server.handleAIMove
	server.handlers[actionLeave] = server.handleGameLeave

	return server
}

// Handler - serves the WebSocket endpoint on /ws.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.upgradeToWebSocket)

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	defer conn.Close()

	log.Info("WebSocket connection established", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	client := newClient(conn)
	defer client.leave()

	go that.keepAlive(ctx, client)

	if err = that.handleMessages(ctx, client); err != nil {
		log.Error("error handling messages", "error", err)
	}

	log.Info("WebSocket connection closed")
}

// handleMessages - processes messages from the client until it disconnects.
func (that *Server) handleMessages(ctx context.Context, client *client) error {
	log := that.logger.With("method", "handleMessages")

	client.conn.SetReadLimit(maxMessageSize)
	if err := client.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, reqBody, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("failed to read message: %w", err)
			}
			return nil
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			if err = that.sendErrorResponse(client, actionError, "malformed message"); err != nil {
				return err
			}
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			if err = that.sendErrorResponse(client, message.Action, "unknown action"); err != nil {
				return err
			}
			continue
		}

		if err = handler(ctx, client, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) keepAlive(ctx context.Context, client *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				that.logger.Debug("failed to ping client", "error", err)
				return
			}
		}
	}
}

// errStreamClosed is pushed when the server ends a stream the client did not leave:
// the session was deleted or the client fell too far behind.
const errStreamClosed = "event stream closed, connect again"

// forwardEvents - pushes session events to the client until the subscription ends.
func (that *Server) forwardEvents(client *client, session *subscription, events <-chan entity.Event) {
	log := that.logger.With("method", "forwardEvents", "sessionID", session.sessionID)

	for event := range events {
		if err := client.send(string(event.Kind), event); err != nil {
			log.Error("failed to push event", "kind", event.Kind, "error", err)
			session.ended.Store(true)
			session.unsubscribe()
			return
		}
	}

	session.ended.Store(true)

	if session.left.Load() {
		return
	}

	log.Warn("event stream closed by server")

	payload := Payload{Session: session.sessionID, Error: errStreamClosed}
	if err := that.sendMessage(client, actionLeave, payload); err != nil {
		log.Debug("failed to notify client", "error", err)
	}
}

func (that *Server) sendMessage(client *client, action string, payload Payload) error {
	if err := client.send(action, payload); err != nil {
		return fmt.Errorf("failed to send %s response: %w", action, err)
	}

	return nil
}

func (that *Server) sendErrorResponse(client *client, action, errorMsg string) error {
	payload := Payload{Error: errorMsg}
	if err := that.sendMessage(client, action, payload); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
