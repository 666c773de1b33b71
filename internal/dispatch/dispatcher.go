package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lvdashuaibi/ballotbot/internal/ballot"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

const (
	msgNoItems = "Error: you must provide at least one nomination for voting."
	msgEmpty   = "Invalid command format. Command text cannot be empty."
	msgUnknown = "Unknown command %q. Please use %s or %s."
)

// Reply is what the webhook answers. Ephemeral replies go back to
// interactive actions and are shown only to the acting user.
type Reply struct {
	Status    int
	Text      string
	Ephemeral bool
}

type Dispatcher struct {
	engine  *ballot.Engine
	metrics *metrics.MetricService
}

func NewDispatcher(engine *ballot.Engine, ms *metrics.MetricService) *Dispatcher {
	return &Dispatcher{engine: engine, metrics: ms}
}

// Handle runs one inbound event. Soft failures become reply text; only
// internal failures are returned as errors.
func (d *Dispatcher) Handle(ctx context.Context, ev model.WebhookEvent) (Reply, error) {
	voter := ev.UserName
	if voter == "" {
		voter = ev.UserID
	}

	switch a := Decode(ev).(type) {
	case Vote:
		out, err := d.engine.Select(ctx, ballot.SelectRequest{
			MessageID: ev.PostID,
			Voter:     voter,
			Item:      a.Item,
			Candidate: a.Candidate,
		})
		if err != nil {
			return Reply{}, fmt.Errorf("select: %w", err)
		}
		return Reply{Status: http.StatusOK, Text: out.Message, Ephemeral: true}, nil

	case SubmitVote:
		out, err := d.engine.Confirm(ctx, ballot.ConfirmRequest{
			MessageID: ev.PostID,
			Voter:     voter,
			Item:      a.Item,
			ChannelID: ev.ChannelID,
		})
		if err != nil {
			return Reply{}, fmt.Errorf("confirm: %w", err)
		}
		return Reply{Status: http.StatusOK, Text: out.Message, Ephemeral: true}, nil

	case StartPoll:
		out, err := d.engine.Open(ctx, ballot.OpenRequest{Items: a.Items, Author: voter, ChannelID: ev.ChannelID})
		if err != nil {
			return Reply{}, fmt.Errorf("open poll: %w", err)
		}
		if out.Kind == ballot.KindInvalidInput {
			return Reply{Status: http.StatusBadRequest, Text: msgNoItems}, nil
		}
		return Reply{Status: http.StatusOK, Text: out.Message}, nil

	case EndPoll:
		out, err := d.engine.Close(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("close poll: %w", err)
		}
		return Reply{Status: http.StatusOK, Text: out.Message}, nil

	case EmptyCommand:
		return Reply{Status: http.StatusBadRequest, Text: msgEmpty}, nil

	case Unknown:
		d.metrics.Inc(metrics.MetricUnknownCommands)
		logging.Logger.Debugw("unknown command", "user", voter, "text", a.Text)
		return Reply{Status: http.StatusOK, Text: fmt.Sprintf(msgUnknown, a.Text, StartCommand, EndCommand)}, nil

	default:
		return Reply{}, fmt.Errorf("unhandled action %T", a)
	}
}
