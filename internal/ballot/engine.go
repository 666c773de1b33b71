package ballot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
	"github.com/lvdashuaibi/ballotbot/internal/model"
	"github.com/lvdashuaibi/ballotbot/internal/repository"
	"github.com/lvdashuaibi/ballotbot/internal/selection"
)

// Notifier delivers outbound chat messages. Every call happens after the gate
// has been released; failures never undo committed ballot state.
type Notifier interface {
	PostPollItem(ctx context.Context, channelID, item string) error
	PostMessage(ctx context.Context, channelID, text string) error
	DirectMessage(ctx context.Context, username, text string) error
	DisableVoteButton(ctx context.Context, messageID, item string) error
}

// Publisher hands ballot events to an asynchronous consumer.
type Publisher interface {
	Publish(ctx context.Context, event *model.BallotEvent) error
}

// Outcome is the user-facing result of a ballot operation. Soft failures
// (duplicate vote, missing selection, ...) are outcomes, not errors.
type Outcome struct {
	Kind    Kind
	Message string
	// Set by Close.
	Author string
	Tally  model.Tally
}

// Err returns the sentinel error for soft-failure outcomes.
func (o Outcome) Err() error {
	return o.Kind.Err()
}

type OpenRequest struct {
	Items     []string
	Author    string
	ChannelID string
}

type SelectRequest struct {
	MessageID string
	Voter     string
	Item      string
	Candidate string
}

type ConfirmRequest struct {
	MessageID string
	Voter     string
	Item      string
	ChannelID string
}

// Snapshot is a consistent read of the current poll.
type Snapshot struct {
	Open   bool
	Author string
	Tally  model.Tally
}

type Options struct {
	Store     repository.Store
	Tracker   *selection.Tracker
	Gate      *Gate
	Notifier  Notifier
	Publisher Publisher
	Metrics   *metrics.MetricService
	// AdminUsername receives the final results on Close. Empty falls back
	// to the poll author.
	AdminUsername string
}

// Engine owns the ballot store and the gate. One Engine serves the process.
type Engine struct {
	store         repository.Store
	tracker       *selection.Tracker
	gate          *Gate
	notifier      Notifier
	publisher     Publisher
	metrics       *metrics.MetricService
	adminUsername string
	now           func() time.Time
}

func NewEngine(opts Options) *Engine {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = selection.NewTracker(opts.Store)
	}
	return &Engine{
		store:         opts.Store,
		tracker:       tracker,
		gate:          opts.Gate,
		notifier:      opts.Notifier,
		publisher:     opts.Publisher,
		metrics:       opts.Metrics,
		adminUsername: opts.AdminUsername,
		now:           time.Now,
	}
}

// SetPublisher attaches the event publisher once it exists; the local
// outbox needs the engine to build its handler.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// Open discards any current poll without tallying it and starts a new one,
// then posts one message per item in order.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (Outcome, error) {
	if len(req.Items) == 0 {
		return Outcome{Kind: KindInvalidInput, Message: "at least one nomination is required"}, nil
	}

	poll := model.Poll{Author: req.Author, OpenedAt: e.now()}
	err := e.gate.Do(ctx, func() error {
		if err := e.store.ResetPoll(ctx, poll); err != nil {
			return fmt.Errorf("reset poll: %w", err)
		}
		return e.tracker.Reset(ctx)
	})
	if err != nil {
		return Outcome{}, err
	}

	e.metrics.Inc(metrics.MetricPollsOpened)
	logging.Logger.Infow("poll opened", "author", req.Author, "items", len(req.Items))

	for _, item := range req.Items {
		e.deliver("post poll item", e.notifier.PostPollItem(ctx, req.ChannelID, item))
	}
	e.publish(ctx, &model.BallotEvent{Kind: model.EventPollOpened, Author: req.Author})

	return Outcome{Kind: KindPollOpened, Message: msgPollOpened}, nil
}

// Close tallies the current poll and discards all per-poll state. Closing
// with no poll open yields an empty tally.
func (e *Engine) Close(ctx context.Context) (Outcome, error) {
	var author string
	var tally model.Tally
	err := e.gate.Do(ctx, func() error {
		poll, err := e.store.CurrentPoll(ctx)
		if err != nil {
			return fmt.Errorf("read current poll: %w", err)
		}
		if poll != nil {
			author = poll.Author
		}
		if tally, err = e.store.ClosePoll(ctx); err != nil {
			return fmt.Errorf("close poll: %w", err)
		}
		return e.tracker.Reset(ctx)
	})
	if err != nil {
		return Outcome{}, err
	}

	e.metrics.Inc(metrics.MetricPollsClosed)
	logging.Logger.Infow("poll closed", "author", author, "items", len(tally))

	text := RenderTally(headerClosed, tally)
	recipient := e.adminUsername
	if recipient == "" {
		recipient = author
	}
	if recipient != "" {
		e.deliver("send results", e.notifier.DirectMessage(ctx, recipient, text))
	}
	e.publish(ctx, &model.BallotEvent{Kind: model.EventPollClosed, Author: author})

	return Outcome{Kind: KindPollClosed, Message: text, Author: author, Tally: tally}, nil
}

// Tally reads the current aggregate without taking the gate.
func (e *Engine) Tally(ctx context.Context) (model.Tally, error) {
	tally, err := e.store.Tally(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tally: %w", err)
	}
	return tally, nil
}

// Snapshot reads the poll and its tally under the gate so the pair is
// consistent with concurrent Open/Close.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.gate.Do(ctx, func() error {
		poll, err := e.store.CurrentPoll(ctx)
		if err != nil {
			return fmt.Errorf("read current poll: %w", err)
		}
		if poll != nil {
			snap.Open = true
			snap.Author = poll.Author
		}
		snap.Tally, err = e.store.Tally(ctx)
		if err != nil {
			return fmt.Errorf("read tally: %w", err)
		}
		return nil
	})
	return snap, err
}

func (e *Engine) deliver(op string, err error) {
	if err == nil {
		return
	}
	e.metrics.Inc(metrics.MetricDeliveryFailures)
	logging.Logger.Warnw("chat delivery failed", "op", op, "error", fmt.Errorf("%w: %v", ErrNotificationDelivery, err))
}

func (e *Engine) publish(ctx context.Context, event *model.BallotEvent) {
	if e.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = e.now()
	if err := e.publisher.Publish(ctx, event); err != nil {
		logging.Logger.Warnw("publish ballot event", "kind", event.Kind, "error", err)
	}
}
