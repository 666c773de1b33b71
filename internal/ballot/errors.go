package ballot

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrDuplicateVote        = errors.New("already voted for this item")
	ErrNoSelection          = errors.New("no candidate selected")
	ErrUnknownCommand       = errors.New("unknown command")
	ErrNoActivePoll         = errors.New("no poll is open")
	ErrNotificationDelivery = errors.New("notification delivery failed")
	ErrGateTimeout          = errors.New("timed out waiting for the ballot gate")
)

// Kind classifies an Outcome.
type Kind int

const (
	KindPollOpened Kind = iota
	KindPollClosed
	KindSelected
	KindVoteRecorded
	KindDuplicateVote
	KindNoSelection
	KindNoActivePoll
	KindInvalidInput
	KindUnknownCommand
)

var kindNames = map[Kind]string{
	KindPollOpened:     "poll_opened",
	KindPollClosed:     "poll_closed",
	KindSelected:       "selected",
	KindVoteRecorded:   "vote_recorded",
	KindDuplicateVote:  "duplicate_vote",
	KindNoSelection:    "no_selection",
	KindNoActivePoll:   "no_active_poll",
	KindInvalidInput:   "invalid_input",
	KindUnknownCommand: "unknown_command",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Err maps soft-failure kinds to their sentinel error, nil otherwise.
func (k Kind) Err() error {
	switch k {
	case KindDuplicateVote:
		return ErrDuplicateVote
	case KindNoSelection:
		return ErrNoSelection
	case KindNoActivePoll:
		return ErrNoActivePoll
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUnknownCommand:
		return ErrUnknownCommand
	}
	return nil
}
