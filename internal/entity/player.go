package entity

// PlayerAssignment says which mark the human plays and which the AI plays.
// In human-vs-human mode Human is the mark that opens every game.
type PlayerAssignment struct {
	Human Mark `json:"human"`
	AI    Mark `json:"ai"`
}

func NewPlayerAssignment(human Mark) PlayerAssignment {
	return PlayerAssignment{
		Human: human,
		AI:    human.Opponent(),
	}
}
