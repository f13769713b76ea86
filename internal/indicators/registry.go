package indicators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"stealth-signal-bot/internal/marketdata"
)

// ErrInsufficientData means a module could not score a symbol from the data it
// was given. The module's score is Missing; this is not reported as a failure.
var ErrInsufficientData = errors.New("insufficient data")

// ModuleComputeError records a module failure for one symbol. The module's
// score becomes Missing and the symbol is still scored from the rest.
type ModuleComputeError struct {
	Module string
	Symbol string
	Err    error
}

func (e *ModuleComputeError) Error() string {
	return fmt.Sprintf("module %s failed for %s: %v", e.Module, e.Symbol, e.Err)
}

func (e *ModuleComputeError) Unwrap() error { return e.Err }

// Input is everything a module may read when scoring a symbol.
type Input struct {
	Symbol   string
	Snapshot *marketdata.Snapshot
	Now      time.Time
	// Scores holds the results of independent modules. It is only populated
	// for modules that implement Dependent.
	Scores map[string]float64
}

// Module scores a symbol in [0, 100].
type Module interface {
	Name() string
	Compute(in Input) (float64, error)
}

// Dependent modules run after every independent module and see their scores.
type Dependent interface {
	Module
	DependsOnScores()
}

// Entry is one registered module with its weight and enabled flag.
type Entry struct {
	Module  Module
	Weight  float64
	Enabled bool
}

// Registry maps module names to entries. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	defaults map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry), defaults: make(map[string]Entry)}
}

// Register adds or replaces the module under its name.
func (r *Registry) Register(m Module, weight float64, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := Entry{Module: m, Weight: weight, Enabled: enabled}
	r.entries[m.Name()] = e
	r.defaults[m.Name()] = e
}

// Configure overrides weights and enabled flags for registered modules.
// Every module starts from its registered values, so a name dropped from
// the maps goes back to its default. Unregistered names are ignored.
func (r *Registry) Configure(weights map[string]float64, enabled map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.defaults {
		r.entries[name] = e
	}
	for name, w := range weights {
		if e, ok := r.entries[name]; ok {
			e.Weight = w
			r.entries[name] = e
		}
	}
	for name, on := range enabled {
		if e, ok := r.entries[name]; ok {
			e.Enabled = on
			r.entries[name] = e
		}
	}
}

// Names lists the registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns an immutable copy of the enabled modules. A scan works from
// one snapshot so that concurrent configuration edits cannot affect it.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s Snapshot
	for _, e := range r.entries {
		if !e.Enabled || e.Weight <= 0 {
			continue
		}
		if _, ok := e.Module.(Dependent); ok {
			s.dependent = append(s.dependent, e)
		} else {
			s.independent = append(s.independent, e)
		}
	}
	byName := func(es []Entry) func(i, j int) bool {
		return func(i, j int) bool { return es[i].Module.Name() < es[j].Module.Name() }
	}
	sort.Slice(s.independent, byName(s.independent))
	sort.Slice(s.dependent, byName(s.dependent))
	return s
}

// Snapshot is a frozen set of enabled modules and their weights.
type Snapshot struct {
	independent []Entry
	dependent   []Entry
}

// Weights returns the weight of each module in the snapshot.
func (s Snapshot) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.independent)+len(s.dependent))
	for _, e := range s.independent {
		out[e.Module.Name()] = e.Weight
	}
	for _, e := range s.dependent {
		out[e.Module.Name()] = e.Weight
	}
	return out
}

// Len is the number of enabled modules.
func (s Snapshot) Len() int { return len(s.independent) + len(s.dependent) }

// ScoreSet is the per-symbol result of running a snapshot. Modules absent
// from Scores are Missing.
type ScoreSet struct {
	Scores  map[string]float64
	Missing []string
	Errors  []*ModuleComputeError
}

// Evaluate runs every module in the snapshot against in. It never fails:
// module errors and panics are captured in the returned ScoreSet.
func (s Snapshot) Evaluate(ctx context.Context, in Input) ScoreSet {
	set := ScoreSet{Scores: make(map[string]float64, s.Len())}
	run := func(e Entry, in Input) {
		name := e.Module.Name()
		if err := ctx.Err(); err != nil {
			set.Missing = append(set.Missing, name)
			return
		}
		v, err := safeCompute(e.Module, in)
		switch {
		case err == nil:
			set.Scores[name] = clamp(v, 0, 100)
		case errors.Is(err, ErrInsufficientData):
			set.Missing = append(set.Missing, name)
		default:
			set.Missing = append(set.Missing, name)
			set.Errors = append(set.Errors, &ModuleComputeError{Module: name, Symbol: in.Symbol, Err: err})
		}
	}

	in.Scores = nil
	for _, e := range s.independent {
		run(e, in)
	}
	if len(s.dependent) > 0 {
		scores := make(map[string]float64, len(set.Scores))
		for k, v := range set.Scores {
			scores[k] = v
		}
		in.Scores = scores
		for _, e := range s.dependent {
			run(e, in)
		}
	}
	return set
}

func safeCompute(m Module, in Input) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if in.Snapshot == nil {
		return 0, ErrInsufficientData
	}
	v, err = m.Compute(in)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return 0, fmt.Errorf("non-finite score %v", v)
	}
	return v, err
}
