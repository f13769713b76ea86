package indicators

// DefaultWeights are the module weights used when the config does not override them.
var DefaultWeights = map[string]float64{
	NameVolumeMomentum:     1.5,
	NameVWAPDistance:       1.0,
	NameFloatChurn:         1.2,
	NameDilutionRisk:       1.0,
	NameOrderbookImbalance: 0.8,
	NameSqueezePotential:   1.0,
	NamePatternScore:       0.7,
	NameRumorFilter:        0.5,
	NameCatalystLatency:    0.8,
	NameAgreement:          1.0,
}

// NewDefaultRegistry registers every built-in module, enabled, with its
// default weight, then applies the given overrides.
func NewDefaultRegistry(weights map[string]float64, enabled map[string]bool) *Registry {
	r := NewRegistry()
	for _, m := range []Module{
		VolumeMomentum{Lookback: 20},
		VWAPDistance{Stretch: 0.02},
		FloatChurn{Threshold: 0.1},
		DilutionRisk{},
		OrderbookImbalance{Depth: 5},
		SqueezePotential{},
		PatternScore{},
		RumorFilter{},
		CatalystLatency{},
		Agreement{MinModules: 3},
	} {
		r.Register(m, DefaultWeights[m.Name()], true)
	}
	r.Configure(weights, enabled)
	return r
}
