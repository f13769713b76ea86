package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"
)

const simulatedBars = 60

var simulatedHeadlines = []struct {
	title    string
	verified bool
}{
	{"%s announces strategic partnership", true},
	{"%s receives FDA clearance for lead product", true},
	{"%s beats quarterly revenue estimates", true},
	{"Rumor: %s in buyout talks, sources say", false},
	{"%s files mixed shelf registration", true},
	{"Unconfirmed reports of %s insider accumulation", false},
}

// Simulated is a deterministic market data source. The same symbol at the
// same minute always yields the same data, so runs are reproducible without
// an upstream service.
type Simulated struct {
	now func() time.Time
}

var _ Provider = (*Simulated)(nil)

// NewSimulated creates a Simulated provider driven by the wall clock.
func NewSimulated() *Simulated {
	return &Simulated{now: time.Now}
}

// NewSimulatedAt creates a Simulated provider driven by now.
func NewSimulatedAt(now func() time.Time) *Simulated {
	return &Simulated{now: now}
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	return int64(h.Sum64() & math.MaxInt64)
}

// priceAt is a smooth oscillation around the symbol's base price plus
// per-minute noise.
func (s *Simulated) priceAt(seed int64, t time.Time) float64 {
	minute := t.Unix() / 60
	r := rand.New(rand.NewSource(seed))
	base := 5 + r.Float64()*295
	phase1, phase2 := r.Float64()*2*math.Pi, r.Float64()*2*math.Pi
	noise := rand.New(rand.NewSource(seed ^ minute)).NormFloat64()

	m := float64(minute)
	p := base * (1 +
		0.03*math.Sin(2*math.Pi*m/97+phase1) +
		0.015*math.Sin(2*math.Pi*m/23+phase2) +
		0.002*noise)
	return math.Round(p*100) / 100
}

func (s *Simulated) volumeAt(seed int64, t time.Time) float64 {
	minute := t.Unix() / 60
	r := rand.New(rand.NewSource(seed + 7))
	baseVol := 2000 + r.Float64()*50000
	n := rand.New(rand.NewSource((seed + 7) ^ minute))
	v := baseVol * (0.5 + n.Float64())
	if n.Float64() < 0.05 {
		v *= 4
	}
	return math.Round(v)
}

func (s *Simulated) bars(seed int64, now time.Time) []Bar {
	end := now.Truncate(time.Minute)
	out := make([]Bar, 0, simulatedBars)
	prev := s.priceAt(seed, end.Add(-simulatedBars*time.Minute))
	for i := simulatedBars - 1; i >= 0; i-- {
		t := end.Add(-time.Duration(i) * time.Minute)
		c := s.priceAt(seed, t)
		wick := rand.New(rand.NewSource(seed ^ (t.Unix() * 31))).Float64() * 0.004 * c
		out = append(out, Bar{
			Time:   t,
			Open:   prev,
			High:   math.Max(prev, c) + wick,
			Low:    math.Min(prev, c) - wick,
			Close:  c,
			Volume: s.volumeAt(seed, t),
		})
		prev = c
	}
	return out
}

func (s *Simulated) quote(symbol string, seed int64, now time.Time, bars []Bar) Quote {
	q := Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         s.priceAt(seed, now),
		Open:          s.priceAt(seed, now.Add(-6*time.Hour)),
		PreviousClose: s.priceAt(seed, now.Add(-24*time.Hour)),
		Timestamp:     now,
		High:          math.Inf(-1),
		Low:           math.Inf(1),
	}
	var vol float64
	for _, b := range bars {
		q.High = math.Max(q.High, b.High)
		q.Low = math.Min(q.Low, b.Low)
		vol += b.Volume
	}
	q.High = math.Max(q.High, q.Price)
	q.Low = math.Min(q.Low, q.Price)
	q.Volume = vol * 6
	q.AvgVolume = (2000 + rand.New(rand.NewSource(seed+7)).Float64()*50000) * float64(simulatedBars) * 4
	return q
}

// GetQuote returns the simulated quote for symbol at the current minute.
func (s *Simulated) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	seed := symbolSeed(symbol)
	now := s.now().UTC()
	q := s.quote(symbol, seed, now, s.bars(seed, now))
	return &q, nil
}

// GetSnapshot returns simulated bars, profile, book and headlines for symbol.
func (s *Simulated) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	seed := symbolSeed(symbol)
	now := s.now().UTC()
	bars := s.bars(seed, now)
	q := s.quote(symbol, seed, now, bars)

	r := rand.New(rand.NewSource(seed + 13))
	float := 5e6 + r.Float64()*195e6
	profile := &Profile{
		FloatShares:       float,
		SharesOutstanding: float * (1.1 + r.Float64()),
		ShortInterest:     float * r.Float64() * 0.35,
		DaysToCover:       0.5 + r.Float64()*7.5,
		BorrowFeePct:      r.Float64() * 60,
		CashOnHand:        1e6 + r.Float64()*5e8,
		QuarterlyBurn:     r.Float64() * 6e7,
		ActiveOffering:    r.Float64() < 0.1,
		ShelfRegistration: r.Float64() < 0.25,
	}

	br := rand.New(rand.NewSource(seed ^ (now.Unix() / 60) ^ 0x5f))
	book := &OrderBook{}
	for i := 1; i <= 5; i++ {
		tick := q.Price * 0.0005 * float64(i)
		book.Bids = append(book.Bids, BookLevel{Price: q.Price - tick, Size: math.Round(100 + br.Float64()*5000)})
		book.Asks = append(book.Asks, BookLevel{Price: q.Price + tick, Size: math.Round(100 + br.Float64()*5000)})
	}

	var headlines []Headline
	for i, n := 0, r.Intn(3); i < n; i++ {
		h := simulatedHeadlines[r.Intn(len(simulatedHeadlines))]
		age := time.Duration(5+r.Intn(48*60)) * time.Minute
		headlines = append(headlines, Headline{
			Time:     now.Add(-age),
			Title:    fmt.Sprintf(h.title, q.Symbol),
			Source:   "simulated",
			Verified: h.verified,
		})
	}

	return &Snapshot{Quote: q, Bars: bars, Profile: profile, Book: book, Headlines: headlines}, nil
}
