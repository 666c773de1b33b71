package repository

import (
	"context"

	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// Store is the durable ballot state: votes, the voter log, the current poll
// and per-message selection contexts. Callers serialize mutations through the
// ballot gate; implementations only guarantee that each method is atomic.
type Store interface {
	// ResetPoll discards all votes, voter log entries, selections and the
	// current poll, then stores poll as the new current poll.
	ResetPoll(ctx context.Context, poll model.Poll) error

	// ClosePoll returns the tally and discards all per-poll state.
	ClosePoll(ctx context.Context) (model.Tally, error)

	// CurrentPoll returns nil when no poll is open.
	CurrentPoll(ctx context.Context) (*model.Poll, error)

	HasVoted(ctx context.Context, voter, item string) (bool, error)

	// RecordVote writes the vote and its voter log entry together. It
	// returns false when the voter already voted on the item.
	RecordVote(ctx context.Context, vote model.VoteRecord) (bool, error)

	Tally(ctx context.Context) (model.Tally, error)

	SaveSelection(ctx context.Context, key model.SelectionKey, candidate string) error
	GetSelection(ctx context.Context, key model.SelectionKey) (string, bool, error)
	ClearSelections(ctx context.Context) error

	Close() error
}
