package scoring

import (
	"testing"

	"stealth-signal-bot/internal/indicators"
	"stealth-signal-bot/internal/marketdata"
	"stealth-signal-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healthySnapshot passes every gate check.
func healthySnapshot() *marketdata.Snapshot {
	closes := make([]float64, 20)
	price := 10.0
	for i := range closes {
		if i%2 == 0 {
			price += 0.2
		} else {
			price -= 0.1
		}
		closes[i] = price
	}
	bars := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		bars[i] = marketdata.Bar{Open: c, High: c + 0.1, Low: c - 0.1, Close: c, Volume: 1000}
	}
	return &marketdata.Snapshot{
		Quote: marketdata.Quote{Symbol: "AAPL", Price: 10, Volume: 600_000, AvgVolume: 200_000},
		Bars:  bars,
		Profile: &marketdata.Profile{
			FloatShares: 50e6, SharesOutstanding: 60e6, CashOnHand: 1e9, QuarterlyBurn: 1e6,
		},
	}
}

func TestThresholds_Tier(t *testing.T) {
	th := DefaultThresholds

	tests := []struct {
		conf float64
		gate bool
		want models.Tier
	}{
		{95, true, models.TierPlatinum},
		{95, false, models.TierGold},
		{90, true, models.TierPlatinum},
		{89.99, true, models.TierGold},
		{75, false, models.TierGold},
		{60, false, models.TierSilver},
		{45, true, models.TierBronze},
		{44.99, true, models.TierNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Tier(tt.conf, tt.gate), "confidence %v gate %v", tt.conf, tt.gate)
	}

	t.Run("monotonic in confidence", func(t *testing.T) {
		for _, gate := range []bool{true, false} {
			prev := 0
			for c := 0.0; c <= 100; c += 0.5 {
				rank := th.Tier(c, gate).Rank()
				assert.GreaterOrEqual(t, rank, prev)
				prev = rank
			}
		}
	})

	t.Run("platinum requires the gate", func(t *testing.T) {
		for c := 0.0; c <= 100; c += 0.5 {
			assert.NotEqual(t, models.TierPlatinum, th.Tier(c, false))
		}
	})
}

func TestConfidence_RenormalizesOverAvailable(t *testing.T) {
	weights := map[string]float64{"a": 1, "b": 3, "c": 6}

	conf, ok := Confidence(map[string]float64{"a": 40, "b": 80}, weights)

	require.True(t, ok)
	assert.InDelta(t, 70.0, conf, 1e-9)

	_, ok = Confidence(map[string]float64{}, weights)
	assert.False(t, ok)

	_, ok = Confidence(map[string]float64{"z": 90}, weights)
	assert.False(t, ok)
}

func TestGatekeeper_Evaluate(t *testing.T) {
	g := DefaultGatekeeper()

	t.Run("healthy symbol passes", func(t *testing.T) {
		res := g.Evaluate(healthySnapshot())
		assert.True(t, res.Passed, res.Failures)
		assert.InDelta(t, 1.0, res.Quality, 1e-9)
	})

	t.Run("active offering fails", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Profile.ActiveOffering = true

		res := g.Evaluate(snap)

		assert.False(t, res.Passed)
		assert.Equal(t, []string{"active offering"}, res.Failures)
	})

	t.Run("thin volume and small float fail", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Quote.Volume = 50_000
		snap.Profile.FloatShares = 5e6
		snap.Profile.SharesOutstanding = 6e6

		res := g.Evaluate(snap)

		assert.False(t, res.Passed)
		assert.Len(t, res.Failures, 3)
	})

	t.Run("missing profile fails", func(t *testing.T) {
		snap := healthySnapshot()
		snap.Profile = nil

		assert.False(t, g.Evaluate(snap).Passed)
	})
}

func TestScorer_Score(t *testing.T) {
	weights := map[string]float64{"a": 1, "b": 1}

	t.Run("gate failure demotes platinum to gold", func(t *testing.T) {
		s := NewScorer(DefaultThresholds)
		snap := healthySnapshot()
		snap.Profile.ActiveOffering = true

		res, ok := s.Score(indicators.ScoreSet{Scores: map[string]float64{"a": 95, "b": 97}}, weights, snap, marketdata.SessionRegular)

		require.True(t, ok)
		assert.InDelta(t, 96.0, res.Confidence, 1e-9)
		assert.Equal(t, models.TierGold, res.Tier)
	})

	t.Run("gate pass gives platinum", func(t *testing.T) {
		s := NewScorer(DefaultThresholds)

		res, ok := s.Score(indicators.ScoreSet{Scores: map[string]float64{"a": 95, "b": 97}}, weights, healthySnapshot(), marketdata.SessionRegular)

		require.True(t, ok)
		assert.Equal(t, models.TierPlatinum, res.Tier)
	})

	t.Run("session and risk adjustments", func(t *testing.T) {
		s := NewScorer(DefaultThresholds)
		w := map[string]float64{indicators.NameDilutionRisk: 1, indicators.NameSqueezePotential: 1}
		set := indicators.ScoreSet{Scores: map[string]float64{indicators.NameDilutionRisk: 40, indicators.NameSqueezePotential: 80}}

		res, ok := s.Score(set, w, healthySnapshot(), marketdata.SessionPremarket)

		require.True(t, ok)
		assert.InDelta(t, 60.0, res.Raw, 1e-9)
		assert.InDelta(t, 45.36, res.Confidence, 1e-9)
		assert.Equal(t, []string{"premarket", "dilution_high", "squeeze_high"}, res.Adjustments)
		assert.Equal(t, models.TierBronze, res.Tier)
	})

	t.Run("confidence is capped at 100", func(t *testing.T) {
		s := NewScorer(DefaultThresholds)
		w := map[string]float64{indicators.NameSqueezePotential: 1}

		res, _ := s.Score(indicators.ScoreSet{Scores: map[string]float64{indicators.NameSqueezePotential: 100}}, w, healthySnapshot(), marketdata.SessionRegular)

		assert.InDelta(t, 100.0, res.Confidence, 1e-9)
	})

	t.Run("nothing reported", func(t *testing.T) {
		_, ok := NewScorer(DefaultThresholds).Score(indicators.ScoreSet{}, weights, healthySnapshot(), marketdata.SessionRegular)
		assert.False(t, ok)
	})
}
