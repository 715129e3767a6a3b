package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satscex/exchange/internal/domain"
)

func TestMarket_IsOpen(t *testing.T) {
	cases := []struct {
		status domain.MarketStatus
		want   bool
	}{
		{domain.MarketStatusOpen, true},
		{domain.MarketStatusPendingResolution, false},
		{domain.MarketStatusResolved, false},
		{domain.MarketStatusCancelled, false},
	}
	for _, tc := range cases {
		m := &domain.Market{Status: tc.status}
		assert.Equal(t, tc.want, m.IsOpen(), "status=%s", tc.status)
	}
}

// TestMarket_NeverBothResolvedAndOpen is a sanity check on the enum itself
// rather than on mutable state: MarketStatusOpen and a set Resolution are
// mutually exclusive states the service layer enforces, but the zero value
// of Resolution must read as "not yet decided" so a freshly created open
// market never looks resolved by accident.
func TestMarket_NeverBothResolvedAndOpen(t *testing.T) {
	m := &domain.Market{Status: domain.MarketStatusOpen}
	assert.Equal(t, domain.ResolutionNone, m.Resolution)
	assert.True(t, m.IsOpen())
}
