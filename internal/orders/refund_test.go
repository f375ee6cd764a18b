package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRefundFee_Schedule(t *testing.T) {
	total := decimal.NewFromInt(100000)
	purchased := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		now           time.Time
		performanceAt time.Time
		wantFee       string
	}{
		{
			name:          "ten or more days out is free",
			now:           time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
			performanceAt: time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC),
			wantFee:       "0",
		},
		{
			name:          "seven to nine days out charges 10 percent",
			now:           time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC),
			performanceAt: time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC),
			wantFee:       "10000",
		},
		{
			name:          "three to six days out charges 20 percent",
			now:           time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
			performanceAt: time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC),
			wantFee:       "20000",
		},
		{
			name:          "one to two days out charges 30 percent",
			now:           time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC),
			performanceAt: time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC),
			wantFee:       "30000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := CalculateRefundFee(total, purchased, tt.performanceAt, tt.now)
			require.NoError(t, err)
			assert.True(t, fee.Equal(decimal.RequireFromString(tt.wantFee)),
				"fee = %s, want %s", fee, tt.wantFee)
		})
	}
}

func TestCalculateRefundFee_PurchaseDayIsFree(t *testing.T) {
	total := decimal.NewFromInt(50000)
	purchased := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	// Same calendar day as the purchase, even though the show is tomorrow.
	now := time.Date(2026, 1, 14, 23, 0, 0, 0, time.UTC)
	performance := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)

	fee, err := CalculateRefundFee(total, purchased, performance, now)
	require.NoError(t, err)
	assert.True(t, fee.IsZero())
}

func TestCalculateRefundFee_PerformanceDayRejected(t *testing.T) {
	total := decimal.NewFromInt(50000)
	purchased := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	performance := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)

	_, err := CalculateRefundFee(total, purchased, performance, now)
	assert.Error(t, err)
}

func TestCalculateRefundFee_RoundsToTwoPlaces(t *testing.T) {
	total := decimal.RequireFromString("33.33")
	purchased := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	performance := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)

	fee, err := CalculateRefundFee(total, purchased, performance, now)
	require.NoError(t, err)
	assert.True(t, fee.Equal(decimal.RequireFromString("3.33")), "fee = %s", fee)
}
