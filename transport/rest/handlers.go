package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/usecase"
)

type gameResponse struct {
	Game *entity.Game `json:"game"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type symbolRequest struct {
	Mark string `json:"mark"`
}

type moveRequest struct {
	Cell *int `json:"cell"`
}

func (that *Server) ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Error("failed to write pong", "error", err)
	}
}

func (that *Server) createSession(w http.ResponseWriter, r *http.Request) {
	game, err := that.manager.CreateSession(r.Context())
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusCreated, gameResponse{Game: game})
}

func (that *Server) getSession(w http.ResponseWriter, r *http.Request) {
	game, err := that.manager.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, gameResponse{Game: game})
}

func (that *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := that.manager.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		that.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *Server) reset(w http.ResponseWriter, r *http.Request) {
	that.runCommand(w, r, that.manager.Reset)
}

func (that *Server) resetScores(w http.ResponseWriter, r *http.Request) {
	that.runCommand(w, r, that.manager.ResetScores)
}

func (that *Server) requestAIMove(w http.ResponseWriter, r *http.Request) {
	that.runCommand(w, r, that.manager.RequestAIMove)
}

func (that *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !that.decode(w, r, &req) {
		return
	}

	that.runCommand(w, r, func(ctx context.Context, sessionID string) (*usecase.Result, error) {
		return that.manager.SetMode(ctx, sessionID, entity.Mode(req.Mode))
	})
}

func (that *Server) chooseSymbol(w http.ResponseWriter, r *http.Request) {
	var req symbolRequest
	if !that.decode(w, r, &req) {
		return
	}

	that.runCommand(w, r, func(ctx context.Context, sessionID string) (*usecase.Result, error) {
		return that.manager.ChooseSymbol(ctx, sessionID, entity.Mark(req.Mark))
	})
}

func (that *Server) makeTurn(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !that.decode(w, r, &req) {
		return
	}

	if req.Cell == nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cell is required"})
		return
	}

	that.runCommand(w, r, func(ctx context.Context, sessionID string) (*usecase.Result, error) {
		return that.manager.MakeTurn(ctx, sessionID, *req.Cell)
	})
}

func (that *Server) runCommand(w http.ResponseWriter, r *http.Request, command func(context.Context, string) (*usecase.Result, error)) {
	result, err := command(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, result)
}

func (that *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}

	return true
}

// writeError - maps rejections to 409, unknown sessions to 404 and anything else to 500.
func (that *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound):
		that.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, apperror.ErrIllegalMove), errors.Is(err, apperror.ErrInvalidConfiguration):
		that.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		that.logger.Error("request failed", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}
