package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-arena/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-arena/internal/entity"
	"github.com/rocketscienceinc/tictactoe-arena/internal/tictactoe"
)

const (
	defaultAIDelay      = 400 * time.Millisecond
	deferredMoveTimeout = 5 * time.Second
	subscriberBuffer    = 32
)

type gameRepo interface {
	CreateOrUpdate(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	DeleteByID(ctx context.Context, id string) error
}

type bot interface {
	ChooseMove(board entity.Board, botMark, humanMark entity.Mark) (int, error)
}

type scheduler interface {
	AfterFunc(delay time.Duration, fn func())
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}

// Result is the outcome of an accepted command.
type Result struct {
	Game   *entity.Game   `json:"game"`
	Events []entity.Event `json:"events"`
}

type Option func(*GameManager)

// WithAIDelay sets the pause before the AI answers.
func WithAIDelay(delay time.Duration) Option {
	return func(that *GameManager) {
		that.aiDelay = delay
	}
}

// WithScheduler replaces time.AfterFunc for deferred AI moves.
func WithScheduler(s scheduler) Option {
	return func(that *GameManager) {
		that.scheduler = s
	}
}

// GameManager runs commands against stored sessions one at a time, fans the resulting
// events out to subscribers and schedules the AI's answer.
type GameManager struct {
	logger   *slog.Logger
	gameRepo gameRepo
	bot      bot

	aiDelay   time.Duration
	scheduler scheduler

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch        chan entity.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch:   make(chan entity.Event, subscriberBuffer),
		done: make(chan struct{}),
	}
}

// close ends the stream and releases the goroutine watching the subscriber's context.
func (that *subscriber) close() {
	that.closeOnce.Do(func() {
		close(that.ch)
		close(that.done)
	})
}

func NewGameManager(logger *slog.Logger, gameRepo gameRepo, bot bot, opts ...Option) *GameManager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &GameManager{
		logger:   logger.With("component", "game-manager"),
		gameRepo: gameRepo,
		bot:      bot,

		aiDelay:   defaultAIDelay,
		scheduler: timeScheduler{},

		ctx:    ctx,
		cancel: cancel,

		subs: make(map[string]map[*subscriber]struct{}),
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// CreateSession stores a fresh human vs human game under a new ID.
func (that *GameManager) CreateSession(ctx context.Context) (*entity.Game, error) {
	game := entity.NewGame(uuid.NewString())

	if err := that.gameRepo.CreateOrUpdate(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	that.logger.Info("session created", "sessionID", game.ID)

	return game, nil
}

func (that *GameManager) GetSession(ctx context.Context, sessionID string) (*entity.Game, error) {
	game, err := that.gameRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// DeleteSession removes the session and closes its subscriptions.
func (that *GameManager) DeleteSession(ctx context.Context, sessionID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.gameRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	that.subsMu.Lock()
	for sub := range that.subs[sessionID] {
		sub.close()
	}
	delete(that.subs, sessionID)
	that.subsMu.Unlock()

	that.logger.Info("session deleted", "sessionID", sessionID)

	return nil
}

func (that *GameManager) Reset(ctx context.Context, sessionID string) (*Result, error) {
	return that.execute(ctx, sessionID, func(controller *tictactoe.GameController) error {
		controller.Reset()
		return nil
	})
}

func (that *GameManager) ResetScores(ctx context.Context, sessionID string) (*Result, error) {
	return that.execute(ctx, sessionID, func(controller *tictactoe.GameController) error {
		controller.ResetScores()
		return nil
	})
}

func (that *GameManager) SetMode(ctx context.Context, sessionID string, mode entity.Mode) (*Result, error) {
	return that.execute(ctx, sessionID, func(controller *tictactoe.GameController) error {
		if err := controller.SetMode(mode); err != nil {
			return fmt.Errorf("failed to set mode: %w", err)
		}
		return nil
	})
}

func (that *GameManager) ChooseSymbol(ctx context.Context, sessionID string, mark entity.Mark) (*Result, error) {
	return that.execute(ctx, sessionID, func(controller *tictactoe.GameController) error {
		if err := controller.ChooseSymbol(mark); err != nil {
			return fmt.Errorf("failed to choose symbol: %w", err)
		}
		return nil
	})
}

func (that *GameManager) MakeTurn(ctx context.Context, sessionID string, cell int) (*Result, error) {
	return that.execute(ctx, sessionID, func(controller *tictactoe.GameController) error {
		if _, err := controller.AttemptMove(cell); err != nil {
			return fmt.Errorf("failed to make turn: %w", err)
		}
		return nil
	})
}

func (that *GameManager) RequestAIMove(ctx context.Context, sessionID string) (*Result, error) {
	return that.execute(ctx, sessionID, func(controller *tictactoe.GameController) error {
		if _, err := controller.RequestAIMove(); err != nil {
			return fmt.Errorf("failed to make ai turn: %w", err)
		}
		return nil
	})
}

// Subscribe streams the session's events until ctx is done, the returned func is called,
// the session is deleted, or the subscriber falls behind.
func (that *GameManager) Subscribe(ctx context.Context, sessionID string) (<-chan entity.Event, func(), error) {
	sub, err := that.register(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			that.subsMu.Lock()
			defer that.subsMu.Unlock()

			if set, ok := that.subs[sessionID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(that.subs, sessionID)
				}
			}
			sub.close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-that.ctx.Done():
		case <-sub.done:
		}
		unsubscribe()
	}()

	return sub.ch, unsubscribe, nil
}

// register checks the session and adds the subscriber under the command lock,
// so a concurrent DeleteSession either sees the subscriber or makes the check fail.
func (that *GameManager) register(ctx context.Context, sessionID string) (*subscriber, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, err := that.gameRepo.GetByID(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	sub := newSubscriber()

	that.subsMu.Lock()
	defer that.subsMu.Unlock()

	set, ok := that.subs[sessionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		that.subs[sessionID] = set
	}
	set[sub] = struct{}{}

	return sub, nil
}

// Close turns pending deferred AI moves into no-ops and ends all subscriptions.
func (that *GameManager) Close() {
	that.cancel()

	that.subsMu.Lock()
	defer that.subsMu.Unlock()

	for sessionID, set := range that.subs {
		for sub := range set {
			sub.close()
		}
		delete(that.subs, sessionID)
	}
}

func (that *GameManager) execute(ctx context.Context, sessionID string, command func(*tictactoe.GameController) error) (*Result, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	game, err := that.gameRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	recorder := &eventRecorder{}
	controller := tictactoe.NewGameController(game, that.bot, recorder)

	if err = command(controller); err != nil {
		return nil, err
	}

	snapshot := controller.Snapshot()
	if err = that.gameRepo.CreateOrUpdate(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	that.publish(sessionID, recorder.events)

	if recorder.has(entity.EventAITurnReady) {
		that.scheduleAIMove(sessionID)
	}

	return &Result{Game: snapshot, Events: recorder.events}, nil
}

// publish never blocks: a subscriber whose buffer is full is dropped.
func (that *GameManager) publish(sessionID string, events []entity.Event) {
	that.subsMu.Lock()
	defer that.subsMu.Unlock()

	set := that.subs[sessionID]
	for sub := range set {
		for _, event := range events {
			select {
			case sub.ch <- event:
				continue
			default:
			}

			that.logger.Warn("dropping slow subscriber", "sessionID", sessionID)
			delete(set, sub)
			sub.close()
			break
		}
	}
}

func (that *GameManager) scheduleAIMove(sessionID string) {
	that.scheduler.AfterFunc(that.aiDelay, func() {
		that.playDeferredAIMove(sessionID)
	})
}

// playDeferredAIMove runs when the pacing delay is over. The session may have been reset,
// reconfigured or deleted meanwhile, so RequestAIMove checks everything again.
func (that *GameManager) playDeferredAIMove(sessionID string) {
	if that.ctx.Err() != nil {
		return
	}

	log := that.logger.With("method", "playDeferredAIMove", "sessionID", sessionID)

	ctx, cancel := context.WithTimeout(that.ctx, deferredMoveTimeout)
	defer cancel()

	_, err := that.RequestAIMove(ctx, sessionID)

	switch {
	case err == nil:
		log.Debug("ai move played")
	case errors.Is(err, apperror.ErrInvalidConfiguration), errors.Is(err, apperror.ErrSessionNotFound):
		log.Debug("stale ai move dropped", "reason", err)
	default:
		log.Error("failed to play ai move", "error", err)
	}
}

type eventRecorder struct {
	events []entity.Event
}

func (that *eventRecorder) Notify(event entity.Event) {
	that.events = append(that.events, event)
}

func (that *eventRecorder) has(kind entity.EventKind) bool {
	for _, event := range that.events {
		if event.Kind == kind {
			return true
		}
	}

	return false
}
