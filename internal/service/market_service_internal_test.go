package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satscex/exchange/internal/domain"
)

func TestValidMarketType(t *testing.T) {
	cases := []struct {
		marketType domain.MarketType
		want       bool
	}{
		{domain.MarketTypeEvent, true},
		{domain.MarketTypeAttendance, true},
		{domain.MarketTypeWinner, true},
		{domain.MarketType("bogus"), false},
		{domain.MarketType(""), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, validMarketType(tc.marketType), "type=%q", tc.marketType)
	}
}
