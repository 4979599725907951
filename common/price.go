package common

import "math/big"

// CurrentPrice computes the Dutch-auction current price for an order at
// time now (unix seconds), per spec.md §3:
//
//	currentPrice = min(sellCurve(now), buyCurve(now))
//	curve(t)     = linearInterpolate(startPrice, endPrice, startTime, endTime, t)
//
// The price is undefined outside [startTime, endTime]; callers MUST check
// InPriceWindow before calling CurrentPrice and reject the match with
// ErrPriceWindowClosed otherwise.
func CurrentPrice(sell, buy *Order, now int64) (*big.Int, error) {
	if !InPriceWindow(sell, now) || !InPriceWindow(buy, now) {
		return nil, Wrap(ErrPriceWindowClosed)
	}
	sellPrice := interpolate(sell.Constraints, now)
	buyPrice := interpolate(buy.Constraints, now)
	if sellPrice.Cmp(buyPrice) <= 0 {
		return sellPrice, nil
	}
	return buyPrice, nil
}

// InPriceWindow reports whether now falls within [startTime, endTime] for
// the order's constraints, inclusive on both ends.
func InPriceWindow(o *Order, now int64) bool {
	t := big.NewInt(now)
	start := o.Constraints.StartTime()
	end := o.Constraints.EndTime()
	if start != nil && t.Cmp(start) < 0 {
		return false
	}
	if end != nil && t.Cmp(end) > 0 {
		return false
	}
	return true
}

// interpolate linearly interpolates between startPrice and endPrice over
// [startTime, endTime] at time t. A zero-length window (startTime ==
// endTime) resolves to endPrice, matching a Dutch auction that has already
// fully decayed at the instant it starts.
func interpolate(c Constraints, now int64) *big.Int {
	startPrice := c.StartPrice()
	endPrice := c.EndPrice()
	startTime := c.StartTime()
	endTime := c.EndTime()
	t := big.NewInt(now)

	duration := new(big.Int).Sub(endTime, startTime)
	if duration.Sign() <= 0 {
		return new(big.Int).Set(endPrice)
	}
	elapsed := new(big.Int).Sub(t, startTime)
	if elapsed.Sign() < 0 {
		elapsed = big.NewInt(0)
	}
	if elapsed.Cmp(duration) > 0 {
		elapsed = duration
	}

	// price = startPrice + (endPrice - startPrice) * elapsed / duration
	delta := new(big.Int).Sub(endPrice, startPrice)
	delta.Mul(delta, elapsed)
	delta.Quo(delta, duration)
	return new(big.Int).Add(startPrice, delta)
}
