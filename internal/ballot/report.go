package ballot

import (
	"context"
	"fmt"

	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// HandleEvent consumes ballot events off the outbox or Kafka. After each
// recorded vote the poll author receives the running tally by direct
// message. Other kinds are ignored.
func (e *Engine) HandleEvent(ctx context.Context, event *model.BallotEvent) error {
	if event == nil || event.Kind != model.EventVoteRecorded {
		return nil
	}

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot for report: %w", err)
	}
	// The poll may have been closed or replaced since the vote.
	if !snap.Open || snap.Author == "" {
		logging.Logger.Debugw("skip running tally, no open poll", "event", event.ID)
		return nil
	}

	if err := e.notifier.DirectMessage(ctx, snap.Author, RenderTally(headerRunning, snap.Tally)); err != nil {
		e.deliver("send running tally", err)
	}
	return nil
}
