package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/usecase"
)

const errNotConnected = "connect to a session first"

var errCellRequired = errors.New("cell is required")

// handleConnect - attaches the client to an existing session or to a new one and starts pushing its events.
func (that *Server) handleConnect(ctx context.Context, client *client, msg *Message) error {
	log := that.logger.With("method", "handleConnect")

	payloadReq, err := parsePayload(msg)
	if err != nil {
		return that.sendErrorResponse(client, msg.Action, "malformed payload")
	}

	var game *entity.Game
	if payloadReq.Session == "" {
		game, err = that.manager.CreateSession(ctx)
	} else {
		game, err = that.manager.GetSession(ctx, payloadReq.Session)
	}

	if err != nil {
		return that.sendCommandError(client, msg.Action, err)
	}

	events, unsubscribe, err := that.manager.Subscribe(ctx, game.ID)
	if err != nil {
		return that.sendCommandError(client, msg.Action, err)
	}

	client.leave()

	session := &subscription{sessionID: game.ID, unsubscribe: unsubscribe}
	client.session = session

	go that.forwardEvents(client, session, events)

	if err = that.sendMessage(client, msg.Action, Payload{Session: game.ID, Game: game}); err != nil {
		return err
	}

	log.Info("client connected", "sessionID", game.ID)

	return nil
}

func (that *Server) handleReset(ctx context.Context, client *client, msg *Message) error {
	return that.runCommand(ctx, client, msg, func(ctx context.Context, sessionID string, _ Payload) (*usecase.Result, error) {
		return that.manager.Reset(ctx, sessionID)
	})
}

func (that *Server) handleResetScores(ctx context.Context, client *client, msg *Message) error {
	return that.runCommand(ctx, client, msg, func(ctx context.Context, sessionID string, _ Payload) (*usecase.Result, error) {
		return that.manager.ResetScores(ctx, sessionID)
	})
}

func (that *Server) handleMode(ctx context.Context, client *client, msg *Message) error {
	return that.runCommand(ctx, client, msg, func(ctx context.Context, sessionID string, payload Payload) (*usecase.Result, error) {
		return that.manager.SetMode(ctx, sessionID, entity.Mode(payload.Mode))
	})
}

func (that *Server) handleSymbol(ctx context.Context, client *client, msg *Message) error {
	return that.runCommand(ctx, client, msg, func(ctx context.Context, sessionID string, payload Payload) (*usecase.Result, error) {
		return that.manager.ChooseSymbol(ctx, sessionID, entity.Mark(payload.Mark))
	})
}

func (that *Server) handleGameTurn(ctx context.Context, client *client, msg *Message) error {
	return that.runCommand(ctx, client, msg, func(ctx context.Context, sessionID string, payload Payload) (*usecase.Result, error) {
		if payload.Cell == nil {
			return nil, errCellRequired
		}
		return that.manager.MakeTurn(ctx, sessionID, *payload.Cell)
	})
}

func (that *Server) handleAIMove(ctx context.Context, client *client, msg *Message) error {
	return that.runCommand(ctx, client, msg, func(ctx context.Context, sessionID string, _ Payload) (*usecase.Result, error) {
		return that.manager.RequestAIMove(ctx, sessionID)
	})
}

func (that *Server) handleGameLeave(_ context.Context, client *client, msg *Message) error {
	log := that.logger.With("method", "handleGameLeave")

	sessionID := client.sessionID()
	if sessionID == "" {
		return that.sendErrorResponse(client, msg.Action, errNotConnected)
	}

	client.leave()

	log.Info("client left session", "sessionID", sessionID)

	return that.sendMessage(client, msg.Action, Payload{Session: sessionID})
}

// runCommand - parses the payload, runs command against the client's session and replies with the game.
func (that *Server) runCommand(
	ctx context.Context,
	client *client,
	msg *Message,
	command func(ctx context.Context, sessionID string, payload Payload) (*usecase.Result, error),
) error {
	sessionID := client.sessionID()
	if sessionID == "" {
		return that.sendErrorResponse(client, msg.Action, errNotConnected)
	}

	payloadReq, err := parsePayload(msg)
	if err != nil {
		return that.sendErrorResponse(client, msg.Action, "malformed payload")
	}

	result, err := command(ctx, sessionID, payloadReq)
	if err != nil {
		return that.sendCommandError(client, msg.Action, err)
	}

	return that.sendMessage(client, msg.Action, Payload{Session: sessionID, Game: result.Game})
}

// sendCommandError - replies with the rejection reason. Unexpected failures are logged and hidden.
func (that *Server) sendCommandError(client *client, action string, err error) error {
	switch {
	case errors.Is(err, errCellRequired),
		errors.Is(err, apperror.ErrSessionNotFound),
		errors.Is(err, apperror.ErrIllegalMove),
		errors.Is(err, apperror.ErrInvalidConfiguration):
		return that.sendErrorResponse(client, action, err.Error())
	default:
		that.logger.Error("command failed", "action", action, "error", err)
		return that.sendErrorResponse(client, action, "internal error")
	}
}

func parsePayload(msg *Message) (Payload, error) {
	var payload Payload
	if len(msg.Payload) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return payload, nil
}
