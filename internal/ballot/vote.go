package ballot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// Select stores the voter's tentative candidate for a message. It may be
// repeated; the last selection wins.
func (e *Engine) Select(ctx context.Context, req SelectRequest) (Outcome, error) {
	err := e.gate.Do(ctx, func() error {
		return e.tracker.Remember(ctx, req.MessageID, req.Voter, req.Candidate)
	})
	if err != nil {
		return Outcome{}, err
	}

	e.metrics.Inc(metrics.MetricSelections)
	candidate := strings.TrimSpace(req.Candidate)
	if candidate == "" {
		return Outcome{Kind: KindNoSelection, Message: noSelectionMessage(req.Item)}, nil
	}
	return Outcome{Kind: KindSelected, Message: selectedMessage(candidate)}, nil
}

// Confirm records the voter's selected candidate for the item, at most once
// per (voter, item).
func (e *Engine) Confirm(ctx context.Context, req ConfirmRequest) (Outcome, error) {
	var out Outcome
	var candidate string
	err := e.gate.Do(ctx, func() error {
		poll, err := e.store.CurrentPoll(ctx)
		if err != nil {
			return fmt.Errorf("read current poll: %w", err)
		}
		if poll == nil {
			out = Outcome{Kind: KindNoActivePoll, Message: msgNoActivePoll}
			return nil
		}

		voted, err := e.store.HasVoted(ctx, req.Voter, req.Item)
		if err != nil {
			return fmt.Errorf("check voter log: %w", err)
		}
		if voted {
			out = Outcome{Kind: KindDuplicateVote, Message: duplicateMessage(req.Item)}
			return nil
		}

		var ok bool
		candidate, ok, err = e.tracker.Recall(ctx, req.MessageID, req.Voter)
		if err != nil {
			return err
		}
		if !ok {
			out = Outcome{Kind: KindNoSelection, Message: noSelectionMessage(req.Item)}
			return nil
		}

		recorded, err := e.store.RecordVote(ctx, model.VoteRecord{Item: req.Item, Candidate: candidate, Voter: req.Voter})
		if err != nil {
			return fmt.Errorf("record vote: %w", err)
		}
		if !recorded {
			out = Outcome{Kind: KindDuplicateVote, Message: duplicateMessage(req.Item)}
			return nil
		}
		out = Outcome{Kind: KindVoteRecorded, Message: recordedMessage(req.Item, candidate)}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	switch out.Kind {
	case KindVoteRecorded:
		e.metrics.Inc(metrics.MetricVotesRecorded)
	case KindDuplicateVote:
		e.metrics.Inc(metrics.MetricDuplicateVotes)
	case KindNoSelection:
		e.metrics.Inc(metrics.MetricNoSelection)
	case KindNoActivePoll:
		e.metrics.Inc(metrics.MetricNoActivePoll)
	}
	logging.Logger.Infow("confirm processed", "voter", req.Voter, "item", req.Item, "outcome", out.Kind.String())

	if out.Kind != KindVoteRecorded {
		return out, nil
	}

	if req.ChannelID != "" {
		e.deliver("post confirmation", e.notifier.PostMessage(ctx, req.ChannelID, out.Message))
	}
	if req.MessageID != "" {
		e.deliver("disable vote button", e.notifier.DisableVoteButton(ctx, req.MessageID, req.Item))
	}
	e.publish(ctx, &model.BallotEvent{
		Kind:      model.EventVoteRecorded,
		Item:      req.Item,
		Candidate: candidate,
		Voter:     req.Voter,
	})

	return out, nil
}
