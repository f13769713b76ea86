package indicators

import (
	"math"
	"strings"
	"time"
)

var rumorMarkers = []string{"rumor", "unconfirmed", "sources say", "speculation", "reportedly"}

func isRumor(title string, verified bool) bool {
	if !verified {
		return true
	}
	t := strings.ToLower(title)
	for _, m := range rumorMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

// RumorFilter penalizes symbols whose recent news flow is dominated by
// unverified stories.
type RumorFilter struct {
	Window time.Duration
}

func (RumorFilter) Name() string { return NameRumorFilter }

func (m RumorFilter) Compute(in Input) (float64, error) {
	window := m.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	var total, rumors int
	for _, h := range in.Snapshot.Headlines {
		if in.Now.Sub(h.Time) > window {
			continue
		}
		total++
		if isRumor(h.Title, h.Verified) {
			rumors++
		}
	}
	if total == 0 {
		return 0, ErrInsufficientData
	}
	return 100 * (1 - float64(rumors)/float64(total)), nil
}

// CatalystLatency rewards a fresh verified catalyst that the price has not
// yet fully reacted to.
type CatalystLatency struct {
	HalfLife time.Duration
}

func (CatalystLatency) Name() string { return NameCatalystLatency }

func (m CatalystLatency) Compute(in Input) (float64, error) {
	halfLife := m.HalfLife
	if halfLife <= 0 {
		halfLife = 6 * time.Hour
	}
	var latest time.Time
	for _, h := range in.Snapshot.Headlines {
		if isRumor(h.Title, h.Verified) || h.Time.After(in.Now) {
			continue
		}
		if h.Time.After(latest) {
			latest = h.Time
		}
	}
	if latest.IsZero() {
		return 0, ErrInsufficientData
	}
	age := in.Now.Sub(latest)
	fresh := math.Pow(0.5, float64(age)/float64(halfLife))
	// a catalyst already priced in is worth less
	moved := math.Min(math.Abs(in.Snapshot.Quote.ChangePct())/20, 1)
	return 100 * fresh * (1 - 0.5*moved), nil
}

// Agreement is the cross-module agreement gate. It scores how consistently
// the other modules lean bullish and needs at least MinModules of them.
type Agreement struct {
	MinModules int
}

func (Agreement) Name() string { return NameAgreement }

func (Agreement) DependsOnScores() {}

func (m Agreement) Compute(in Input) (float64, error) {
	need := m.MinModules
	if need <= 0 {
		need = 3
	}
	if len(in.Scores) < need {
		return 0, ErrInsufficientData
	}
	vals := make([]float64, 0, len(in.Scores))
	bullish := 0
	for _, v := range in.Scores {
		vals = append(vals, v)
		if v >= 50 {
			bullish++
		}
	}
	frac := float64(bullish) / float64(len(vals))
	dispersion := math.Min(stdev(vals)/50, 1)
	return 100 * frac * (1 - 0.5*dispersion), nil
}
