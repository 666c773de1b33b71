// Package selection tracks the tentative candidate a voter picked on an
// interactive message, bridging the select and confirm steps.
package selection

import (
	"context"
	"fmt"
	"strings"

	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// Backend persists selections. Both repository.Store and
// repository.RedisRepository satisfy it.
type Backend interface {
	SaveSelection(ctx context.Context, key model.SelectionKey, candidate string) error
	GetSelection(ctx context.Context, key model.SelectionKey) (string, bool, error)
	ClearSelections(ctx context.Context) error
}

// Tracker keys selections by (message, voter) so a message shown to several
// voters never leaks one voter's choice into another's confirm.
type Tracker struct {
	backend Backend
}

func NewTracker(backend Backend) *Tracker {
	return &Tracker{backend: backend}
}

// Remember stores candidate as the latest choice, replacing any earlier one.
func (t *Tracker) Remember(ctx context.Context, messageID, voter, candidate string) error {
	key := model.SelectionKey{MessageID: messageID, Voter: voter}
	if err := t.backend.SaveSelection(ctx, key, strings.TrimSpace(candidate)); err != nil {
		return fmt.Errorf("remember selection %s: %w", key, err)
	}
	return nil
}

// Recall returns the latest choice. ok is false when nothing usable was selected.
func (t *Tracker) Recall(ctx context.Context, messageID, voter string) (candidate string, ok bool, err error) {
	key := model.SelectionKey{MessageID: messageID, Voter: voter}
	candidate, found, err := t.backend.GetSelection(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("recall selection %s: %w", key, err)
	}
	if !found || candidate == "" {
		return "", false, nil
	}
	return candidate, true, nil
}

// Reset drops every selection.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.backend.ClearSelections(ctx); err != nil {
		return fmt.Errorf("reset selections: %w", err)
	}
	return nil
}
