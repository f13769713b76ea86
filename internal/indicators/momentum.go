package indicators

import (
	"math"

	"stealth-signal-bot/internal/marketdata"
)

// Module names.
const (
	NameVolumeMomentum     = "volume_momentum"
	NameVWAPDistance       = "vwap_distance"
	NameFloatChurn         = "float_churn"
	NameDilutionRisk       = "dilution_risk"
	NameOrderbookImbalance = "orderbook_imbalance"
	NameSqueezePotential   = "squeeze_potential"
	NamePatternScore       = "pattern_score"
	NameRumorFilter        = "rumor_filter"
	NameCatalystLatency    = "catalyst_latency"
	NameAgreement          = "agreement"
)

// VolumeMomentum scores the slope of on-balance volume over a lookback
// window. Rising OBV scores above 50, falling below.
type VolumeMomentum struct {
	Lookback int
}

func (VolumeMomentum) Name() string { return NameVolumeMomentum }

func (m VolumeMomentum) Compute(in Input) (float64, error) {
	lookback := m.Lookback
	if lookback <= 1 {
		lookback = 20
	}
	bars := in.Snapshot.Bars
	if len(bars) < lookback {
		return 0, ErrInsufficientData
	}
	obv := OBV(bars[len(bars)-lookback:])
	sd := stdev(obv)
	if sd == 0 {
		return 50, nil
	}
	// slope per bar, normalized so that a move of two standard deviations
	// across the window saturates the score
	norm := clamp(slope(obv)*float64(lookback)/(2*sd), -1, 1)
	return 50 + 50*norm, nil
}

// VWAPDistance rewards price sitting just above VWAP and penalizes
// extension in either direction.
type VWAPDistance struct {
	// Stretch is the fractional distance above VWAP considered extended.
	Stretch float64
}

func (VWAPDistance) Name() string { return NameVWAPDistance }

func (m VWAPDistance) Compute(in Input) (float64, error) {
	stretch := m.Stretch
	if stretch <= 0 {
		stretch = 0.02
	}
	vwap, ok := VWAP(in.Snapshot.Bars)
	if !ok || vwap <= 0 {
		return 0, ErrInsufficientData
	}
	d := (in.Snapshot.Quote.Price - vwap) / vwap
	switch {
	case d >= 0 && d <= stretch:
		return 100 - 20*(d/stretch), nil
	case d < 0:
		return math.Max(0, 60*(1-math.Abs(d)/0.05)), nil
	default:
		return math.Max(0, 80-80*(d-stretch)/stretch), nil
	}
}

// PatternScore reads bullish and bearish candle patterns in the latest bars.
type PatternScore struct{}

func (PatternScore) Name() string { return NamePatternScore }

func (PatternScore) Compute(in Input) (float64, error) {
	bars := in.Snapshot.Bars
	if len(bars) < 4 {
		return 0, ErrInsufficientData
	}
	var bull, bear float64
	for i := len(bars) - 3; i < len(bars); i++ {
		b, p := candleStrength(bars[i], bars[i-1])
		bull = math.Max(bull, b)
		bear = math.Max(bear, p)
	}
	return 50 + 50*(bull-bear), nil
}

// candleStrength returns the bullish and bearish pattern strength of cur
// given the previous bar, each in [0, 1].
func candleStrength(cur, prev marketdata.Bar) (bull, bear float64) {
	rng := cur.High - cur.Low
	if rng <= 0 {
		return 0, 0
	}
	body := math.Abs(cur.Close - cur.Open)
	bodyPct := body / rng
	upper := (cur.High - math.Max(cur.Open, cur.Close)) / rng
	lower := (math.Min(cur.Open, cur.Close) - cur.Low) / rng
	up := cur.Close > cur.Open

	// hammer / shooting star
	if bodyPct >= 0.15 && lower >= 0.6 && upper <= 0.15 {
		bull = math.Max(bull, clamp(lower, 0, 1))
	}
	if bodyPct >= 0.15 && upper >= 0.6 && lower <= 0.15 {
		bear = math.Max(bear, clamp(upper, 0, 1))
	}
	// marubozu
	if bodyPct >= 0.8 && upper <= 0.1 && lower <= 0.1 {
		if up {
			bull = math.Max(bull, bodyPct)
		} else {
			bear = math.Max(bear, bodyPct)
		}
	}
	// engulfing
	prevBody := math.Abs(prev.Close - prev.Open)
	if prevBody > 0 && body > prevBody {
		prevUp := prev.Close > prev.Open
		if up && !prevUp && cur.Close >= prev.Open && cur.Open <= prev.Close {
			bull = math.Max(bull, clamp(body/(2*prevBody), 0, 1))
		}
		if !up && prevUp && cur.Close <= prev.Open && cur.Open >= prev.Close {
			bear = math.Max(bear, clamp(body/(2*prevBody), 0, 1))
		}
	}
	return bull, bear
}

// OrderbookImbalance scores resting bid size against ask size over the top
// levels of the book.
type OrderbookImbalance struct {
	Depth int
}

func (OrderbookImbalance) Name() string { return NameOrderbookImbalance }

func (m OrderbookImbalance) Compute(in Input) (float64, error) {
	book := in.Snapshot.Book
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, ErrInsufficientData
	}
	depth := m.Depth
	if depth <= 0 {
		depth = 5
	}
	sum := func(levels []marketdata.BookLevel) float64 {
		var s float64
		for i, l := range levels {
			if i >= depth {
				break
			}
			s += l.Size
		}
		return s
	}
	bid, ask := sum(book.Bids), sum(book.Asks)
	if bid+ask <= 0 {
		return 0, ErrInsufficientData
	}
	return 50 + 50*(bid-ask)/(bid+ask), nil
}
