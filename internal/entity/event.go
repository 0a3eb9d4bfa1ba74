package entity

type EventKind string

const (
	EventMoveApplied EventKind = "move:applied"
	EventWon         EventKind = "game:won"
	EventDraw        EventKind = "game:draw"
	EventTurnChanged EventKind = "turn:changed"
	EventAITurnReady EventKind = "ai:turn-ready"
	EventGameReset   EventKind = "game:reset"
)

// Event is emitted by the game controller after every state change.
type Event struct {
	Kind   EventKind   `json:"kind"`
	Cell   *int        `json:"cell,omitempty"`
	Mark   Mark        `json:"mark,omitempty"`
	Line   *Line       `json:"line,omitempty"`
	Scores *ScoreBoard `json:"scores,omitempty"`
}

func MoveAppliedEvent(cell int, mark Mark) Event {
	return Event{Kind: EventMoveApplied, Cell: &cell, Mark: mark}
}

func WonEvent(mark Mark, line Line, scores ScoreBoard) Event {
	return Event{Kind: EventWon, Mark: mark, Line: &line, Scores: &scores}
}

func DrawEvent(scores ScoreBoard) Event {
	return Event{Kind: EventDraw, Scores: &scores}
}

func TurnChangedEvent(mark Mark) Event {
	return Event{Kind: EventTurnChanged, Mark: mark}
}

func AITurnReadyEvent() Event {
	return Event{Kind: EventAITurnReady}
}

func GameResetEvent(turn Mark, scores ScoreBoard) Event {
	return Event{Kind: EventGameReset, Mark: turn, Scores: &scores}
}
