package scoring

import (
	"fmt"

	"stealth-signal-bot/internal/indicators"
	"stealth-signal-bot/internal/marketdata"
)

// Gatekeeper holds the extra risk checks a symbol must pass to be PLATINUM.
type Gatekeeper struct {
	RSIMin          float64
	RSIMax          float64
	MaxDilutionRisk float64
	MaxChurnScore   float64
	MinVolumeRatio  float64
	MinLiquidity    float64
	MinFloat        float64
}

// DefaultGatekeeper returns the standard PLATINUM gate.
func DefaultGatekeeper() Gatekeeper {
	return Gatekeeper{
		RSIMin:          25,
		RSIMax:          75,
		MaxDilutionRisk: 30,
		MaxChurnScore:   90,
		MinVolumeRatio:  2,
		MinLiquidity:    1_000_000,
		MinFloat:        10_000_000,
	}
}

// GateResult lists the checks that failed. Quality is the share of checks passed.
type GateResult struct {
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
	Quality  float64  `json:"quality"`
}

// Evaluate runs every check against snap. Missing data fails the check it
// is needed for.
func (g Gatekeeper) Evaluate(snap *marketdata.Snapshot) GateResult {
	if snap == nil {
		return GateResult{Failures: []string{"no market data"}}
	}
	var failures []string
	checks := 0
	fail := func(format string, args ...interface{}) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	checks++
	if rsi, ok := indicators.RSI(snap.Bars, 14); !ok {
		fail("rsi unavailable")
	} else if rsi < g.RSIMin || rsi > g.RSIMax {
		fail("rsi %.1f outside %.0f-%.0f", rsi, g.RSIMin, g.RSIMax)
	}

	checks++
	if snap.Profile == nil {
		fail("dilution unknown")
	} else if snap.Profile.ActiveOffering {
		fail("active offering")
	} else if risk := indicators.DilutionRiskScore(snap.Profile); risk > g.MaxDilutionRisk {
		fail("dilution risk %.0f above %.0f", risk, g.MaxDilutionRisk)
	}

	checks++
	if churn := indicators.FloatChurnScore(snap, 0); churn >= g.MaxChurnScore {
		fail("float churn %.0f indicates a pump", churn)
	}

	checks++
	ratio := 0.0
	if snap.Quote.AvgVolume > 0 {
		ratio = snap.Quote.Volume / snap.Quote.AvgVolume
	} else if r, ok := indicators.VolumeRatio(snap.Bars); ok {
		ratio = r
	}
	if ratio < g.MinVolumeRatio {
		fail("volume ratio %.2f below %.2f", ratio, g.MinVolumeRatio)
	}

	checks++
	if liq := snap.Quote.Price * snap.Quote.Volume; liq < g.MinLiquidity {
		fail("liquidity $%.0f below $%.0f", liq, g.MinLiquidity)
	}

	if snap.Profile != nil && snap.Profile.FloatShares > 0 {
		checks++
		if snap.Profile.FloatShares < g.MinFloat {
			fail("float %.0f below %.0f", snap.Profile.FloatShares, g.MinFloat)
		}
	}

	return GateResult{
		Passed:   len(failures) == 0,
		Failures: failures,
		Quality:  float64(checks-len(failures)) / float64(checks),
	}
}
