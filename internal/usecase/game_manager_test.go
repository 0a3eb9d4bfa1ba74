package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/repository"
	mockedUseCase "github.com/rocketscienceinc/tictactoe-arena/mocks/usecase"
)

var errRedisDown = errors.New("redis down")

// manualScheduler keeps deferred calls until the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	calls  []func()
}

func (that *manualScheduler) AfterFunc(delay time.Duration, fn func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.delays = append(that.delays, delay)
	that.calls = append(that.calls, fn)
}

func (that *manualScheduler) pending() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.calls)
}

func (that *manualScheduler) fireAll() {
	that.mu.Lock()
	calls := that.calls
	that.calls = nil
	that.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newManager(t *testing.T, player bot) (*GameManager, *manualScheduler) {
	t.Helper()

	scheduler := &manualScheduler{}
	manager := NewGameManager(discardLogger(), repository.NewMemoryGameRepository(), player,
		WithScheduler(scheduler),
		WithAIDelay(250*time.Millisecond),
	)
	t.Cleanup(manager.Close)

	return manager, scheduler
}

func kinds(events []entity.Event) []entity.EventKind {
	result := make([]entity.EventKind, 0, len(events))
	for _, event := range events {
		result = append(result, event.Kind)
	}
	return result
}

func drain(ch <-chan entity.Event) []entity.Event {
	var events []entity.Event
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestGameManager_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates and stores a fresh game", func(t *testing.T) {
		manager, _ := newManager(t, nil)

		// When: a session is created
		game, err := manager.CreateSession(ctx)

		// Then: it can be read back with the same state
		require.NoError(t, err)
		assert.NotEmpty(t, game.ID)

		stored, err := manager.GetSession(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, game, stored)
		assert.Equal(t, entity.ModeHumanVsHuman, stored.Mode)
		assert.Equal(t, entity.PlayerX, stored.Turn)
	})

	t.Run("Repository error is returned", func(t *testing.T) {
		// Given: a repository that cannot store games
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := NewGameManager(discardLogger(), mockGameRepo, nil)
		t.Cleanup(manager.Close)

		mockGameRepo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Game")).
			Return(errRedisDown).
			Once()

		// When: a session is created
		game, err := manager.CreateSession(ctx)

		// Then: the error is wrapped
		require.ErrorIs(t, err, errRedisDown)
		assert.Nil(t, game)
	})
}

func TestGameManager_MakeTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("Winning sequence is stored and published", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		events, unsubscribe, err := manager.Subscribe(ctx, game.ID)
		require.NoError(t, err)
		defer unsubscribe()

		// When: X completes the main diagonal
		var result *Result
		for _, cell := range []int{0, 1, 4, 2, 8} {
			result, err = manager.MakeTurn(ctx, game.ID, cell)
			require.NoError(t, err, "move %d", cell)
		}

		// Then: the last result carries the win
		assert.Equal(t, entity.StatusWon, result.Game.Status)
		assert.Equal(t, entity.PlayerX, result.Game.Winner)
		assert.Equal(t, &entity.Line{0, 4, 8}, result.Game.Line)
		assert.Equal(t, []entity.EventKind{entity.EventMoveApplied, entity.EventWon}, kinds(result.Events))

		// And: the stored game matches
		stored, err := manager.GetSession(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ScoreBoard{X: 1}, stored.Scores)

		// And: subscribers saw every move in order
		published := drain(events)
		require.Len(t, published, 10)
		assert.Equal(t, entity.EventMoveApplied, published[0].Kind)
		assert.Equal(t, entity.EventWon, published[9].Kind)
	})

	t.Run("Rejected move is not stored", func(t *testing.T) {
		// Given: a stored game with X on the center
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := NewGameManager(discardLogger(), mockGameRepo, nil)
		t.Cleanup(manager.Close)

		game := entity.NewGame("123")
		game.Board[4] = entity.PlayerX
		game.Turn = entity.PlayerO

		mockGameRepo.EXPECT().
			GetByID(mock.Anything, "123").
			Return(game, nil).
			Once()

		// When: O plays the occupied center
		result, err := manager.MakeTurn(ctx, "123", 4)

		// Then: the move is rejected and nothing is saved
		require.ErrorIs(t, err, apperror.ErrIllegalMove)
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		assert.Nil(t, result)
	})

	t.Run("Unknown session", func(t *testing.T) {
		manager, _ := newManager(t, nil)

		_, err := manager.MakeTurn(ctx, "9999999", 0)

		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Save error is returned", func(t *testing.T) {
		// Given: a repository that fails on save
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := NewGameManager(discardLogger(), mockGameRepo, nil)
		t.Cleanup(manager.Close)

		mockGameRepo.EXPECT().
			GetByID(mock.Anything, "123").
			Return(entity.NewGame("123"), nil).
			Once()
		mockGameRepo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Game")).
			Return(errRedisDown).
			Once()

		// When: a legal move is made
		_, err := manager.MakeTurn(ctx, "123", 0)

		// Then: the storage error comes back
		require.ErrorIs(t, err, errRedisDown)
	})
}

func TestGameManager_AIMove(t *testing.T) {
	ctx := context.Background()

	t.Run("AI answers after the configured delay", func(t *testing.T) {
		// Given: a bot that always takes the center
		mockBot := mockedUseCase.NewMockbot(t)
		mockBot.EXPECT().
			ChooseMove(mock.Anything, entity.PlayerO, entity.PlayerX).
			Return(4, nil).
			Once()

		manager, scheduler := newManager(t, mockBot)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.SetMode(ctx, game.ID, entity.ModeHumanVsAI)
		require.NoError(t, err)
		require.Zero(t, scheduler.pending(), "human opens the first game")

		// When: the human plays a corner
		result, err := manager.MakeTurn(ctx, game.ID, 0)
		require.NoError(t, err)

		// Then: the AI turn is announced and one move is scheduled
		assert.Contains(t, kinds(result.Events), entity.EventAITurnReady)
		require.Equal(t, 1, scheduler.pending())
		assert.Equal(t, 250*time.Millisecond, scheduler.delays[0])

		// When: the delay is over
		scheduler.fireAll()

		// Then: the AI has played and it is the human's turn again
		stored, err := manager.GetSession(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, stored.Board[4])
		assert.Equal(t, entity.PlayerX, stored.Turn)
	})

	t.Run("Stale AI move after switching to pvp is dropped", func(t *testing.T) {
		mockBot := mockedUseCase.NewMockbot(t)

		manager, scheduler := newManager(t, mockBot)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.SetMode(ctx, game.ID, entity.ModeHumanVsAI)
		require.NoError(t, err)
		_, err = manager.MakeTurn(ctx, game.ID, 0)
		require.NoError(t, err)

		// Given: the user switches to human vs human before the AI answers
		_, err = manager.SetMode(ctx, game.ID, entity.ModeHumanVsHuman)
		require.NoError(t, err)

		events, unsubscribe, err := manager.Subscribe(ctx, game.ID)
		require.NoError(t, err)
		defer unsubscribe()

		// When: the old timer fires
		scheduler.fireAll()

		// Then: the bot is never asked and nothing changes
		stored, err := manager.GetSession(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.Board{}, stored.Board)
		assert.Empty(t, drain(events))
	})

	t.Run("Stale AI move after deleting the session is dropped", func(t *testing.T) {
		mockBot := mockedUseCase.NewMockbot(t)

		manager, scheduler := newManager(t, mockBot)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.SetMode(ctx, game.ID, entity.ModeHumanVsAI)
		require.NoError(t, err)
		_, err = manager.MakeTurn(ctx, game.ID, 0)
		require.NoError(t, err)

		require.NoError(t, manager.DeleteSession(ctx, game.ID))

		// When: the old timer fires
		// Then: it does not panic and the session stays gone
		assert.NotPanics(t, scheduler.fireAll)

		_, err = manager.GetSession(ctx, game.ID)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Closed manager ignores pending AI moves", func(t *testing.T) {
		mockBot := mockedUseCase.NewMockbot(t)

		manager, scheduler := newManager(t, mockBot)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.SetMode(ctx, game.ID, entity.ModeHumanVsAI)
		require.NoError(t, err)
		_, err = manager.MakeTurn(ctx, game.ID, 0)
		require.NoError(t, err)

		// When: the manager is closed before the timer fires
		manager.Close()
		scheduler.fireAll()

		// Then: the bot is never asked
		stored, err := manager.GetSession(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, stored.Turn)
	})

	t.Run("Explicit request outside AI mode is rejected", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.RequestAIMove(ctx, game.ID)

		require.ErrorIs(t, err, apperror.ErrInvalidConfiguration)
		require.ErrorIs(t, err, apperror.ErrNotAIMode)
	})

	t.Run("AI opens every second game", func(t *testing.T) {
		mockBot := mockedUseCase.NewMockbot(t)
		mockBot.EXPECT().
			ChooseMove(entity.Board{}, entity.PlayerO, entity.PlayerX).
			Return(4, nil).
			Once()

		manager, scheduler := newManager(t, mockBot)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.SetMode(ctx, game.ID, entity.ModeHumanVsAI)
		require.NoError(t, err)

		// When: the game is reset
		result, err := manager.Reset(ctx, game.ID)
		require.NoError(t, err)

		// Then: the AI is to move and gets scheduled
		assert.Equal(t, entity.PlayerO, result.Game.Turn)
		require.Equal(t, 1, scheduler.pending())

		scheduler.fireAll()

		stored, err := manager.GetSession(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, stored.Board[4])
	})
}

func TestGameManager_Configuration(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown mode is rejected", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		_, err = manager.SetMode(ctx, game.ID, entity.Mode("online"))

		require.ErrorIs(t, err, apperror.ErrInvalidConfiguration)
		require.ErrorIs(t, err, apperror.ErrUnknownMode)
	})

	t.Run("Choosing O makes the AI play X", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		result, err := manager.ChooseSymbol(ctx, game.ID, entity.PlayerO)

		require.NoError(t, err)
		assert.Equal(t, entity.NewPlayerAssignment(entity.PlayerO), result.Game.Players)
	})

	t.Run("ResetScores clears the tally", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		for _, cell := range []int{0, 3, 1, 4, 2} {
			_, err = manager.MakeTurn(ctx, game.ID, cell)
			require.NoError(t, err)
		}

		result, err := manager.ResetScores(ctx, game.ID)

		require.NoError(t, err)
		assert.Equal(t, entity.ScoreBoard{}, result.Game.Scores)
		assert.Equal(t, entity.StatusOngoing, result.Game.Status)
	})
}

func TestGameManager_Subscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown session", func(t *testing.T) {
		manager, _ := newManager(t, nil)

		_, _, err := manager.Subscribe(ctx, "9999999")

		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Deleting the session closes the stream", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		events, unsubscribe, err := manager.Subscribe(ctx, game.ID)
		require.NoError(t, err)
		defer unsubscribe()

		require.NoError(t, manager.DeleteSession(ctx, game.ID))

		_, ok := <-events
		assert.False(t, ok)
	})

	t.Run("Cancelled context closes the stream", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		subCtx, cancel := context.WithCancel(ctx)
		events, _, err := manager.Subscribe(subCtx, game.ID)
		require.NoError(t, err)

		cancel()

		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-events:
				return !ok
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Slow subscriber is dropped", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		events, unsubscribe, err := manager.Subscribe(ctx, game.ID)
		require.NoError(t, err)
		defer unsubscribe()

		// When: far more events are produced than the buffer holds
		for range subscriberBuffer {
			_, err = manager.Reset(ctx, game.ID)
			require.NoError(t, err)
		}

		// Then: the stream ends after the buffered events
		received := 0
		for range events {
			received++
		}
		assert.Equal(t, subscriberBuffer, received)
	})

	t.Run("Unsubscribe releases the watcher goroutine", func(t *testing.T) {
		manager, _ := newManager(t, nil)
		game, err := manager.CreateSession(ctx)
		require.NoError(t, err)

		before := runtime.NumGoroutine()

		// When: a long-lived context subscribes and unsubscribes many times
		for range 100 {
			_, unsubscribe, subErr := manager.Subscribe(context.Background(), game.ID)
			require.NoError(t, subErr)
			unsubscribe()
		}

		// Then: no goroutine is left behind
		assert.Eventually(t, func() bool {
			return runtime.NumGoroutine() <= before+2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Deleted sessions release the watcher goroutine", func(t *testing.T) {
		manager, _ := newManager(t, nil)

		before := runtime.NumGoroutine()

		for range 50 {
			game, err := manager.CreateSession(ctx)
			require.NoError(t, err)

			_, _, err = manager.Subscribe(context.Background(), game.ID)
			require.NoError(t, err)

			require.NoError(t, manager.DeleteSession(ctx, game.ID))
		}

		assert.Eventually(t, func() bool {
			return runtime.NumGoroutine() <= before+2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Subscribe racing DeleteSession never leaves an open stream", func(t *testing.T) {
		manager, _ := newManager(t, nil)

		for range 50 {
			game, err := manager.CreateSession(ctx)
			require.NoError(t, err)

			var (
				wg     sync.WaitGroup
				events <-chan entity.Event
				subErr error
			)

			wg.Add(2)
			go func() {
				defer wg.Done()
				events, _, subErr = manager.Subscribe(context.Background(), game.ID)
			}()
			go func() {
				defer wg.Done()
				assert.NoError(t, manager.DeleteSession(ctx, game.ID))
			}()
			wg.Wait()

			// Then: either the subscription was refused or the delete closed it
			if subErr != nil {
				require.ErrorIs(t, subErr, apperror.ErrSessionNotFound)
				continue
			}

			_, ok := <-events
			assert.False(t, ok)
		}
	})
}
