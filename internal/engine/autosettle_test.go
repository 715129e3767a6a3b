package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscex/exchange/internal/domain"
)

// fakeBetShrinker records ShrinkAmount calls in order, standing in for
// BetRepository so extinguish's oldest-first consumption can be checked
// without a database.
type fakeBetShrinker struct {
	calls []shrinkCall
}

type shrinkCall struct {
	betID        uuid.UUID
	newAmountSats int64
}

func (f *fakeBetShrinker) ShrinkAmount(_ context.Context, _ *sqlx.Tx, betID uuid.UUID, newAmountSats int64) error {
	f.calls = append(f.calls, shrinkCall{betID: betID, newAmountSats: newAmountSats})
	return nil
}

// TestExtinguish_OldestFirstFullyConsumesSingleBet covers spec §4.5: when
// the offsetting amount exactly matches the oldest bet, only that bet
// shrinks to zero and later bets are untouched.
func TestExtinguish_OldestFirstFullyConsumesSingleBet(t *testing.T) {
	oldest := &domain.Bet{ID: uuid.New(), AmountSats: 500}
	newer := &domain.Bet{ID: uuid.New(), AmountSats: 300}
	shrinker := &fakeBetShrinker{}

	err := extinguish(context.Background(), nil, shrinker, []*domain.Bet{oldest, newer}, 500)
	require.NoError(t, err)

	require.Len(t, shrinker.calls, 1)
	assert.Equal(t, oldest.ID, shrinker.calls[0].betID)
	assert.Equal(t, int64(0), shrinker.calls[0].newAmountSats)
}

// TestExtinguish_SpillsIntoSecondBet covers the partial-consumption case:
// the offsetting amount exceeds the oldest bet's face value and spills into
// the next-oldest bet, shrinking (not zeroing) it.
func TestExtinguish_SpillsIntoSecondBet(t *testing.T) {
	oldest := &domain.Bet{ID: uuid.New(), AmountSats: 200}
	newer := &domain.Bet{ID: uuid.New(), AmountSats: 300}
	shrinker := &fakeBetShrinker{}

	err := extinguish(context.Background(), nil, shrinker, []*domain.Bet{oldest, newer}, 350)
	require.NoError(t, err)

	require.Len(t, shrinker.calls, 2)
	assert.Equal(t, oldest.ID, shrinker.calls[0].betID)
	assert.Equal(t, int64(0), shrinker.calls[0].newAmountSats)
	assert.Equal(t, newer.ID, shrinker.calls[1].betID)
	assert.Equal(t, int64(150), shrinker.calls[1].newAmountSats, "300 - (350-200) = 150 remaining")
}

// TestExtinguish_StopsOnceAmountConsumed covers the case where the
// offsetting amount is smaller than even the oldest bet: only the oldest
// bet is touched, and bets beyond it are never called.
func TestExtinguish_StopsOnceAmountConsumed(t *testing.T) {
	oldest := &domain.Bet{ID: uuid.New(), AmountSats: 1000}
	neverTouched := &domain.Bet{ID: uuid.New(), AmountSats: 1000}
	shrinker := &fakeBetShrinker{}

	err := extinguish(context.Background(), nil, shrinker, []*domain.Bet{oldest, neverTouched}, 100)
	require.NoError(t, err)

	require.Len(t, shrinker.calls, 1)
	assert.Equal(t, oldest.ID, shrinker.calls[0].betID)
	assert.Equal(t, int64(900), shrinker.calls[0].newAmountSats)
}

func TestExtinguish_ZeroAmountIsNoop(t *testing.T) {
	bet := &domain.Bet{ID: uuid.New(), AmountSats: 100}
	shrinker := &fakeBetShrinker{}

	err := extinguish(context.Background(), nil, shrinker, []*domain.Bet{bet}, 0)
	require.NoError(t, err)
	assert.Empty(t, shrinker.calls)
}
