package notify

import (
	"context"
	"strings"
)

// Directory supplies the candidate options offered on poll-item messages.
type Directory interface {
	Candidates(ctx context.Context) ([]string, error)
}

// StaticDirectory is a fixed candidate list from configuration.
type StaticDirectory []string

func (d StaticDirectory) Candidates(context.Context) ([]string, error) {
	out := make([]string, 0, len(d))
	for _, c := range d {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
