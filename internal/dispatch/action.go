// Package dispatch decodes inbound webhook events into ballot actions and
// runs them against the engine.
package dispatch

import (
	"strings"

	"github.com/lvdashuaibi/ballotbot/internal/model"
	"github.com/lvdashuaibi/ballotbot/internal/notify"
)

const (
	StartCommand = "!start_vote"
	EndCommand   = "!end_vote"
)

// Action is one of Vote, SubmitVote, StartPoll, EndPoll, EmptyCommand or
// Unknown.
type Action interface {
	isAction()
}

// Vote records a tentative candidate selection.
type Vote struct {
	Item      string
	Candidate string
}

// SubmitVote confirms the voter's current selection for Item.
type SubmitVote struct {
	Item string
}

type StartPoll struct {
	Items []string
}

type EndPoll struct{}

// EmptyCommand is blank command text with no interactive action.
type EmptyCommand struct{}

type Unknown struct {
	Text string
}

func (Vote) isAction()         {}
func (SubmitVote) isAction()   {}
func (StartPoll) isAction()    {}
func (EndPoll) isAction()      {}
func (EmptyCommand) isAction() {}
func (Unknown) isAction()      {}

// Decode classifies ev. A structured interactive action takes precedence
// over command text.
func Decode(ev model.WebhookEvent) Action {
	switch ev.Context.Action {
	case notify.ActionVote:
		return Vote{Item: ev.Context.Item, Candidate: ev.SelectedCandidate()}
	case notify.ActionSubmitVote:
		return SubmitVote{Item: ev.Context.Item}
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return EmptyCommand{}
	}
	if text == EndCommand {
		return EndPoll{}
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if isStartCommand(lines[0]) {
		var items []string
		for _, line := range lines[1:] {
			if item := strings.TrimSpace(line); item != "" {
				items = append(items, item)
			}
		}
		return StartPoll{Items: items}
	}
	return Unknown{Text: text}
}

// isStartCommand matches the start keyword alone or followed by whitespace.
func isStartCommand(line string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), StartCommand)
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t')
}
