package model

import (
	"strconv"
	"time"
)

// Poll is the single active poll. Its absence means no poll is open.
type Poll struct {
	Author   string    `json:"author"`
	OpenedAt time.Time `json:"openedAt"`
}

// VoteRecord is one confirmed vote, unique on (Item, Voter).
type VoteRecord struct {
	Item      string `json:"item"`
	Candidate string `json:"candidate"`
	Voter     string `json:"voter"`
}

// VoterLogEntry marks that Voter has voted on Item. It exists exactly when
// the matching VoteRecord exists.
type VoterLogEntry struct {
	Voter string `json:"voter"`
	Item  string `json:"item"`
}

// SelectionKey identifies a tentative choice on an interactive message.
type SelectionKey struct {
	MessageID string `json:"messageId"`
	Voter     string `json:"voter"`
}

// String encodes the key as "<len(MessageID)>:<MessageID>|<Voter>" so that
// separators inside either part cannot make two keys equal.
func (k SelectionKey) String() string {
	return strconv.Itoa(len(k.MessageID)) + ":" + k.MessageID + "|" + k.Voter
}

// TallyRow is one (item, candidate, count) aggregate row as read from a store.
type TallyRow struct {
	Item      string
	Candidate string
	Votes     int
}

type CandidateCount struct {
	Candidate string `json:"candidate"`
	Votes     int    `json:"votes"`
}

type ItemTally struct {
	Item       string           `json:"item"`
	Candidates []CandidateCount `json:"candidates"`
}

// Tally groups votes by item then by candidate. Item and candidate order is
// the order in which they were first seen.
type Tally []ItemTally

// BuildTally groups aggregate rows, keeping first-seen order.
func BuildTally(rows []TallyRow) Tally {
	tally := Tally{}
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.Item]
		if !ok {
			i = len(tally)
			index[row.Item] = i
			tally = append(tally, ItemTally{Item: row.Item})
		}
		it := &tally[i]
		merged := false
		for j := range it.Candidates {
			if it.Candidates[j].Candidate == row.Candidate {
				it.Candidates[j].Votes += row.Votes
				merged = true
				break
			}
		}
		if !merged {
			it.Candidates = append(it.Candidates, CandidateCount{Candidate: row.Candidate, Votes: row.Votes})
		}
	}
	return tally
}

// TallyVotes counts raw vote records.
func TallyVotes(votes []VoteRecord) Tally {
	rows := make([]TallyRow, 0, len(votes))
	for _, v := range votes {
		rows = append(rows, TallyRow{Item: v.Item, Candidate: v.Candidate, Votes: 1})
	}
	return BuildTally(rows)
}

func (t Tally) Empty() bool {
	return len(t) == 0
}

// Count returns the votes for candidate in item, zero when absent.
func (t Tally) Count(item, candidate string) int {
	for _, it := range t {
		if it.Item != item {
			continue
		}
		for _, c := range it.Candidates {
			if c.Candidate == candidate {
				return c.Votes
			}
		}
	}
	return 0
}

// AsMap flattens the tally for comparisons and JSON payloads.
func (t Tally) AsMap() map[string]map[string]int {
	m := make(map[string]map[string]int, len(t))
	for _, it := range t {
		counts := make(map[string]int, len(it.Candidates))
		for _, c := range it.Candidates {
			counts[c.Candidate] = c.Votes
		}
		m[it.Item] = counts
	}
	return m
}

// BallotEvent kinds
const (
	EventPollOpened   = "poll_opened"
	EventVoteRecorded = "vote_recorded"
	EventPollClosed   = "poll_closed"
)

// BallotEvent is published after the gate is released. Consumers use it to
// deliver best-effort reports (e.g. the running tally for the poll author).
type BallotEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Item       string    `json:"item,omitempty"`
	Candidate  string    `json:"candidate,omitempty"`
	Voter      string    `json:"voter,omitempty"`
	Author     string    `json:"author,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// WebhookEvent is the inbound payload of an outgoing webhook or an
// interactive message action.
type WebhookEvent struct {
	Token     string         `json:"token"`
	Text      string         `json:"text"`
	UserID    string         `json:"user_id"`
	UserName  string         `json:"user_name"`
	ChannelID string         `json:"channel_id"`
	PostID    string         `json:"post_id"`
	Context   WebhookContext `json:"context"`
	Data      WebhookData    `json:"data"`
}

type WebhookContext struct {
	Action         string `json:"action"`
	Item           string `json:"item"`
	SelectedOption string `json:"selected_option"`
	SelectedUser   string `json:"selected_user"`
	Token          string `json:"token"`
}

type WebhookData struct {
	Values map[string]string `json:"values"`
}

// SelectFieldName is the name of the candidate select control on poll-item messages.
const SelectFieldName = "employee_select"

// AuthToken returns the token carried either at the top level (outgoing
// webhooks) or inside the integration context (interactive actions).
func (e WebhookEvent) AuthToken() string {
	if e.Token != "" {
		return e.Token
	}
	return e.Context.Token
}

// SelectedCandidate returns the candidate chosen on a select action.
func (e WebhookEvent) SelectedCandidate() string {
	if e.Context.SelectedOption != "" {
		return e.Context.SelectedOption
	}
	if v := e.Data.Values[SelectFieldName]; v != "" {
		return v
	}
	return e.Context.SelectedUser
}
