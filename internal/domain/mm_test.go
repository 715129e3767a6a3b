package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/satscex/exchange/internal/domain"
)

// TestComputeTier covers P5 (tier is a monotonic step function of exposure
// over the configured threshold width).
func TestComputeTier(t *testing.T) {
	maxLoss := int64(1_000_000)
	threshold := decimal.NewFromInt(10) // 10% of max_loss per tier

	cases := []struct {
		name      string
		atRisk    int64
		wantTier  int
	}{
		{"zero_exposure", 0, 0},
		{"below_first_threshold", 50_000, 0},
		{"exactly_one_threshold", 100_000, 1},
		{"between_tiers", 150_000, 1},
		{"exactly_max_loss", 1_000_000, 10},
		{"beyond_max_loss", 1_500_000, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.ComputeTier(tc.atRisk, maxLoss, threshold)
			assert.Equal(t, tc.wantTier, got)
		})
	}
}

func TestComputeTier_ZeroMaxLossOrThreshold(t *testing.T) {
	assert.Equal(t, 0, domain.ComputeTier(500, 0, decimal.NewFromInt(10)))
	assert.Equal(t, 0, domain.ComputeTier(500, 1_000_000, decimal.Zero))
}

// TestPullbackRatio covers P5's risk-pulled quoting: the bot's quote size
// shrinks linearly as at-risk exposure approaches max_loss, clamped to
// [0,1] on both ends.
func TestPullbackRatio(t *testing.T) {
	maxLoss := int64(1_000_000)

	cases := []struct {
		name   string
		atRisk int64
		want   string
	}{
		{"zero_exposure_full_size", 0, "1"},
		{"half_exposure_half_size", 500_000, "0.5"},
		{"at_max_loss_zero_size", 1_000_000, "0"},
		{"beyond_max_loss_clamped_zero", 2_000_000, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.PullbackRatio(tc.atRisk, maxLoss)
			want, err := decimal.NewFromString(tc.want)
			assert.NoError(t, err)
			assert.True(t, want.Equal(got), "atRisk=%d: want %s, got %s", tc.atRisk, want, got)
		})
	}
}

func TestPullbackRatio_ZeroMaxLoss(t *testing.T) {
	got := domain.PullbackRatio(100, 0)
	assert.True(t, decimal.Zero.Equal(got))
}
