package broker

import "stealth-signal-bot/internal/models"

// SlippageFunc returns the simulated fill price for an order on side at the
// quoted price. Implementations must be deterministic.
type SlippageFunc func(side models.Action, price float64) float64

// BasisPoints moves fills against the order by bps: buys fill higher, sells lower.
func BasisPoints(bps float64) SlippageFunc {
	f := bps / 10000
	return func(side models.Action, price float64) float64 {
		if side == models.ActionSell {
			return price * (1 - f)
		}
		return price * (1 + f)
	}
}

// NoSlippage fills at the quoted price.
func NoSlippage(_ models.Action, price float64) float64 { return price }
