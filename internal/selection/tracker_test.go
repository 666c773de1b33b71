package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/ballotbot/internal/model"
	"github.com/lvdashuaibi/ballotbot/internal/repository"
)

func TestTrackerRememberRecall(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(repository.NewMemoryStore())

	_, ok, err := tr.Recall(ctx, "msg1", "carol")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tr.Remember(ctx, "msg1", "carol", "Bob"))
	require.NoError(t, tr.Remember(ctx, "msg1", "carol", " Ann "))

	candidate, ok, err := tr.Recall(ctx, "msg1", "carol")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Ann", candidate)

	_, ok, err = tr.Recall(ctx, "msg1", "dave")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tr.Reset(ctx))
	_, ok, err = tr.Recall(ctx, "msg1", "carol")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrackerBlankCandidateIsUnselected(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(repository.NewMemoryStore())

	require.NoError(t, tr.Remember(ctx, "msg1", "carol", "   "))
	_, ok, err := tr.Recall(ctx, "msg1", "carol")
	require.NoError(t, err)
	require.False(t, ok)
}

type brokenBackend struct{}

var errBroken = errors.New("backend down")

func (brokenBackend) SaveSelection(context.Context, model.SelectionKey, string) error {
	return errBroken
}

func (brokenBackend) GetSelection(context.Context, model.SelectionKey) (string, bool, error) {
	return "", false, errBroken
}

func (brokenBackend) ClearSelections(context.Context) error {
	return errBroken
}

func TestTrackerWrapsBackendErrors(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(brokenBackend{})

	require.ErrorIs(t, tr.Remember(ctx, "m", "v", "c"), errBroken)
	_, _, err := tr.Recall(ctx, "m", "v")
	require.ErrorIs(t, err, errBroken)
	require.ErrorIs(t, tr.Reset(ctx), errBroken)
}
