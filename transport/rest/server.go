package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	CreateSession(ctx context.Context) (*entity.Game, error)
	GetSession(ctx context.Context, sessionID string) (*entity.Game, error)
	DeleteSession(ctx context.Context, sessionID string) error

	Reset(ctx context.Context, sessionID string) (*usecase.Result, error)
	ResetScores(ctx context.Context, sessionID string) (*usecase.Result, error)
	SetMode(ctx context.Context, sessionID string, mode entity.Mode) (*usecase.Result, error)
	ChooseSymbol(ctx context.Context, sessionID string, mark entity.Mark) (*usecase.Result, error)
	MakeTurn(ctx context.Context, sessionID string, cell int) (*usecase.Result, error)
	RequestAIMove(ctx context.Context, sessionID string) (*usecase.Result, error)
}

type Server struct {
	logger  *slog.Logger
	manager gameManager
}

func New(logger *slog.Logger, manager gameManager) *Server {
	return &Server{
		logger:  logger.With("component", "rest"),
		manager: manager,
	}
}

// Router - builds the HTTP routes.
func (that *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer, that.logRequests)

	router.Get("/ping", that.ping)

	router.Post("/sessions", that.createSession)
	router.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", that.getSession)
		r.Delete("/", that.deleteSession)

		r.Post("/reset", that.reset)
		r.Post("/reset-scores", that.resetScores)
		r.Post("/mode", that.setMode)
		r.Post("/symbol", that.chooseSymbol)
		r.Post("/moves", that.makeTurn)
		r.Post("/ai-move", that.requestAIMove)
	})

	return router
}

// Start - starts HTTP server and stops it gracefully when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Router(),
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

func (that *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		that.logger.Debug("request served",
			"httpMethod", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
