package indicators

import (
	"math"

	"stealth-signal-bot/internal/marketdata"
)

// FloatChurn scores how aggressively the public float is turning over.
type FloatChurn struct {
	// Threshold is the daily volume/float ratio considered full churn.
	Threshold float64
}

func (FloatChurn) Name() string { return NameFloatChurn }

func (m FloatChurn) Compute(in Input) (float64, error) {
	p := in.Snapshot.Profile
	if p == nil || p.FloatShares <= 0 {
		return 0, ErrInsufficientData
	}
	return FloatChurnScore(in.Snapshot, m.Threshold), nil
}

// FloatChurnScore combines daily float turnover, relative volume and the
// latest bar's volume spike into a 0..100 score.
func FloatChurnScore(s *marketdata.Snapshot, threshold float64) float64 {
	if threshold <= 0 {
		threshold = 0.1
	}
	if s.Profile == nil || s.Profile.FloatShares <= 0 {
		return 0
	}
	churn := s.Quote.Volume / s.Profile.FloatShares
	rel := 0.0
	if s.Quote.AvgVolume > 0 {
		rel = s.Quote.Volume / s.Quote.AvgVolume
	}
	spike, _ := VolumeRatio(s.Bars)

	score := 0.4*math.Min(churn/threshold, 2)/2 +
		0.3*math.Min(rel, 3)/3 +
		0.3*math.Min(spike, 5)/5
	return clamp(score*100, 0, 100)
}

// DilutionRisk scores the absence of dilution risk: 100 is clean, 0 is an
// imminent offering.
type DilutionRisk struct{}

func (DilutionRisk) Name() string { return NameDilutionRisk }

func (DilutionRisk) Compute(in Input) (float64, error) {
	p := in.Snapshot.Profile
	if p == nil {
		return 0, ErrInsufficientData
	}
	return 100 - DilutionRiskScore(p), nil
}

// DilutionRiskScore is the raw dilution risk in 0..100.
func DilutionRiskScore(p *marketdata.Profile) float64 {
	var risk float64
	if p.ActiveOffering {
		risk += 40
	}
	if p.ShelfRegistration {
		risk += 20
	}
	if p.QuarterlyBurn > 0 {
		runwayMonths := p.CashOnHand / (p.QuarterlyBurn / 3)
		switch {
		case runwayMonths < 6:
			risk += 30
		case runwayMonths < 12:
			risk += 15
		}
	}
	if p.FloatShares > 0 && p.SharesOutstanding/p.FloatShares > 1.5 {
		risk += 10
	}
	return clamp(risk, 0, 100)
}

// DilutionLevel buckets a raw dilution risk score.
func DilutionLevel(risk float64) string {
	switch {
	case risk >= 70:
		return "CRITICAL"
	case risk >= 50:
		return "HIGH"
	case risk >= 30:
		return "MODERATE"
	case risk >= 10:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

// SqueezePotential scores short squeeze setup from short interest, days to
// cover, borrow cost and today's move.
type SqueezePotential struct{}

func (SqueezePotential) Name() string { return NameSqueezePotential }

func (SqueezePotential) Compute(in Input) (float64, error) {
	p := in.Snapshot.Profile
	if p == nil || p.FloatShares <= 0 {
		return 0, ErrInsufficientData
	}
	siPct := p.ShortInterest / p.FloatShares * 100
	score := math.Min(siPct/30, 1)*40 +
		math.Min(p.DaysToCover/5, 1)*30 +
		math.Min(p.BorrowFeePct/50, 1)*20
	if chg := in.Snapshot.Quote.ChangePct(); chg > 0 {
		score += math.Min(chg/10, 1) * 10
	}
	return score, nil
}
