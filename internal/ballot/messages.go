package ballot

import (
	"fmt"
	"strings"

	"github.com/lvdashuaibi/ballotbot/internal/model"
)

const (
	msgPollOpened   = "Voting started."
	msgNoActivePoll = "There is no open poll right now."

	headerClosed  = "Voting finished. Results:"
	headerRunning = "Current voting results:"
)

func selectedMessage(candidate string) string {
	return fmt.Sprintf("You selected: %s", candidate)
}

func recordedMessage(item, candidate string) string {
	return fmt.Sprintf("Your vote for %q in nomination %q has been counted!", candidate, item)
}

func duplicateMessage(item string) string {
	return fmt.Sprintf("You have already voted in nomination %q!", item)
}

func noSelectionMessage(item string) string {
	return fmt.Sprintf("You did not select a candidate for nomination %q.", item)
}

// RenderTally formats a tally as chat text under header.
func RenderTally(header string, tally model.Tally) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	if tally.Empty() {
		b.WriteString("No votes were cast.\n")
		return b.String()
	}
	for _, it := range tally {
		fmt.Fprintf(&b, "%s:\n", it.Item)
		for _, c := range it.Candidates {
			fmt.Fprintf(&b, "- %s: %d %s\n", c.Candidate, c.Votes, plural(c.Votes, "vote", "votes"))
		}
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
