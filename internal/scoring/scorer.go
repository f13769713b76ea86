package scoring

import (
	"math"

	"stealth-signal-bot/internal/config"
	"stealth-signal-bot/internal/indicators"
	"stealth-signal-bot/internal/marketdata"
	"stealth-signal-bot/internal/models"
)

// Thresholds are the minimum confidences for each tier.
type Thresholds struct {
	Platinum float64
	Gold     float64
	Silver   float64
	Bronze   float64
}

// ThresholdsFrom converts the configured tier thresholds.
func ThresholdsFrom(t config.Tiers) Thresholds {
	return Thresholds{Platinum: t.Platinum, Gold: t.Gold, Silver: t.Silver, Bronze: t.Bronze}
}

// DefaultThresholds are 90/75/60/45.
var DefaultThresholds = Thresholds{Platinum: 90, Gold: 75, Silver: 60, Bronze: 45}

// Tier maps a confidence to a tier. PLATINUM additionally requires the gate
// to pass; a failing symbol is demoted to GOLD. Below Bronze returns TierNone.
func (t Thresholds) Tier(confidence float64, gatePassed bool) models.Tier {
	switch {
	case confidence >= t.Platinum && gatePassed:
		return models.TierPlatinum
	case confidence >= t.Gold:
		return models.TierGold
	case confidence >= t.Silver:
		return models.TierSilver
	case confidence >= t.Bronze:
		return models.TierBronze
	default:
		return models.TierNone
	}
}

// Confidence is the weighted average of the available scores with weights
// renormalized over the modules that reported. ok is false when nothing
// with positive weight reported.
func Confidence(scores, weights map[string]float64) (float64, bool) {
	var sum, wsum float64
	for name, v := range scores {
		w := weights[name]
		if w <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v * w
		wsum += w
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

// Session confidence multipliers.
var sessionFactor = map[marketdata.Session]float64{
	marketdata.SessionPremarket:  0.9,
	marketdata.SessionRegular:    1.0,
	marketdata.SessionAfterhours: 0.85,
	marketdata.SessionClosed:     1.0,
}

// Result is the outcome of scoring one symbol.
type Result struct {
	Raw         float64            `json:"raw_confidence"`
	Confidence  float64            `json:"confidence"`
	Tier        models.Tier        `json:"tier"`
	Gate        GateResult         `json:"gate"`
	Scores      map[string]float64 `json:"scores"`
	Adjustments []string           `json:"adjustments,omitempty"`
}

// Scorer turns a module score set into a confidence and tier.
type Scorer struct {
	Thresholds Thresholds
	Gate       Gatekeeper
}

// NewScorer creates a Scorer with the default gatekeeper.
func NewScorer(t Thresholds) *Scorer {
	return &Scorer{Thresholds: t, Gate: DefaultGatekeeper()}
}

// Score aggregates set using weights, applies session and risk adjustments,
// runs the gate and assigns a tier. ok is false when no module reported.
func (s *Scorer) Score(set indicators.ScoreSet, weights map[string]float64, snap *marketdata.Snapshot, session marketdata.Session) (Result, bool) {
	raw, ok := Confidence(set.Scores, weights)
	if !ok {
		return Result{Scores: set.Scores}, false
	}
	res := Result{Raw: raw, Scores: set.Scores}

	conf := raw
	if f, ok := sessionFactor[session]; ok && f != 1 {
		conf *= f
		res.Adjustments = append(res.Adjustments, string(session))
	}
	if v, ok := set.Scores[indicators.NameDilutionRisk]; ok && 100-v > 50 {
		conf *= 0.7
		res.Adjustments = append(res.Adjustments, "dilution_high")
	}
	if v, ok := set.Scores[indicators.NameSqueezePotential]; ok && v >= 65 {
		conf *= 1.2
		res.Adjustments = append(res.Adjustments, "squeeze_high")
	}
	res.Confidence = math.Round(math.Min(conf, 100)*100) / 100

	res.Gate = s.Gate.Evaluate(snap)
	res.Tier = s.Thresholds.Tier(res.Confidence, res.Gate.Passed)
	return res, true
}
