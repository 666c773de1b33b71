package notify

import (
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// Interactive action names carried back in the callback context.
const (
	ActionVote       = "vote"
	ActionSubmitVote = "submit_vote"
)

type post struct {
	ID        string     `json:"id,omitempty"`
	ChannelID string     `json:"channel_id,omitempty"`
	Message   string     `json:"message"`
	Props     *postProps `json:"props,omitempty"`
}

type postProps struct {
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Text    string   `json:"text"`
	Actions []action `json:"actions"`
}

type action struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Style       string       `json:"style,omitempty"`
	DataSource  string       `json:"data_source,omitempty"`
	Options     []option     `json:"options,omitempty"`
	Disabled    bool         `json:"disabled,omitempty"`
	Integration *integration `json:"integration,omitempty"`
}

type option struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

type integration struct {
	URL     string            `json:"url"`
	Context map[string]string `json:"context"`
}

// pollItemPost renders one nomination: a candidate select and a vote button.
// Without candidates the select offers the platform's user list.
func pollItemPost(channelID, item, callbackURL, token string, candidates []string) post {
	sel := action{
		Name: model.SelectFieldName,
		Type: "select",
		Integration: &integration{
			URL:     callbackURL,
			Context: map[string]string{"action": ActionVote, "item": item, "token": token},
		},
	}
	if len(candidates) == 0 {
		sel.DataSource = "users"
	} else {
		for _, c := range candidates {
			sel.Options = append(sel.Options, option{Text: c, Value: c})
		}
	}

	button := action{
		Name:  "Vote",
		Type:  "button",
		Style: "primary",
		Integration: &integration{
			URL:     callbackURL,
			Context: map[string]string{"action": ActionSubmitVote, "item": item, "token": token},
		},
	}

	return post{
		ChannelID: channelID,
		Message:   "Nomination: " + item,
		Props: &postProps{Attachments: []attachment{{
			Text:    "Choose a candidate for " + item,
			Actions: []action{sel, button},
		}}},
	}
}

// votedPost replaces a poll-item message's actions with a disabled button.
// The post is shared by the channel, so it never names a voter's choice.
func votedPost(postID, item string) post {
	return post{
		ID:      postID,
		Message: "",
		Props: &postProps{Attachments: []attachment{{
			Text: "Nomination: " + item,
			Actions: []action{{
				Name:     "You voted",
				Type:     "button",
				Style:    "default",
				Disabled: true,
			}},
		}}},
	}
}
