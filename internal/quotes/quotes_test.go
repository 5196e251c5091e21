package quotes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testTiers() []Tier {
	return []Tier{
		{MinAmount: dec("0"), Rate: dec("100")},
		{MinAmount: dec("10"), Rate: dec("98")},
		{MinAmount: dec("100"), Rate: dec("95")},
	}
}

func TestInterpolateRate(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		expected string
	}{
		{"zero amount takes first tier", "0", "100"},
		{"below first boundary", "5", "99"},
		{"exact tier boundary", "10", "98"},
		{"between middle tiers", "55", "96.5"},
		{"at last tier", "100", "95"},
		{"beyond last tier", "100000", "95"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InterpolateRate(testTiers(), dec(tt.amount))
			assert.True(t, dec(tt.expected).Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestInterpolateRateUnsortedTiers(t *testing.T) {
	tiers := []Tier{
		{MinAmount: dec("100"), Rate: dec("95")},
		{MinAmount: dec("0"), Rate: dec("100")},
		{MinAmount: dec("10"), Rate: dec("98")},
	}
	got := InterpolateRate(tiers, dec("55"))
	assert.True(t, dec("96.5").Equal(got))
}

func TestInterpolateRateEmptyAndSingleTier(t *testing.T) {
	assert.True(t, InterpolateRate(nil, dec("5")).IsZero())

	single := []Tier{{MinAmount: dec("0"), Rate: dec("42")}}
	assert.True(t, dec("42").Equal(InterpolateRate(single, dec("1000"))))
}

func TestNextRefreshDelay(t *testing.T) {
	now := time.Now()
	threshold := 5 * time.Second
	maxCap := 31 * time.Second

	tests := []struct {
		name      string
		expiresAt time.Time
		expected  time.Duration
	}{
		{"normal window", now.Add(15 * time.Second), 10 * time.Second},
		{"already expired", now.Add(-time.Minute), 0},
		{"inside threshold", now.Add(2 * time.Second), 0},
		{"far expiry clamps to cap", now.Add(time.Hour), maxCap},
		{"exactly at cap", now.Add(36 * time.Second), maxCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextRefreshDelay(tt.expiresAt, now, threshold, maxCap))
		})
	}
}

func TestPricedQuoteIsStale(t *testing.T) {
	q := &PricedQuote{ExpirationDate: time.Now().Add(time.Minute)}
	assert.False(t, q.IsStale(time.Now()))
	assert.True(t, q.IsStale(time.Now().Add(2*time.Minute)))
}
