package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Refund fee schedule, keyed by full days remaining until the performance.
// Cancelling on the purchase day is always free; cancelling on the
// performance day is not allowed.
var (
	feeFree   = decimal.Zero
	feeTier10 = decimal.NewFromFloat(0.10)
	feeTier20 = decimal.NewFromFloat(0.20)
	feeTier30 = decimal.NewFromFloat(0.30)
	twoPlaces = int32(2)
)

// CalculateRefundFee returns the cancellation fee for a completed order.
func CalculateRefundFee(total decimal.Decimal, purchasedAt, performanceAt, now time.Time) (decimal.Decimal, error) {
	if sameDay(purchasedAt, now) {
		return feeFree, nil
	}

	days := daysUntil(now, performanceAt)
	switch {
	case days <= 0:
		return decimal.Zero, fmt.Errorf("orders cannot be refunded on the performance day")
	case days >= 10:
		return feeFree, nil
	case days >= 7:
		return total.Mul(feeTier10).Round(twoPlaces), nil
	case days >= 3:
		return total.Mul(feeTier20).Round(twoPlaces), nil
	default:
		return total.Mul(feeTier30).Round(twoPlaces), nil
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// daysUntil counts calendar days from now to the target date, both in UTC.
func daysUntil(now, target time.Time) int {
	n := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(target.UTC().Year(), target.UTC().Month(), target.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(n).Hours() / 24)
}
