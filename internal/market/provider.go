// Package market supplies the shared market-data provider: a seeded
// random-walk simulator that supports dip/rally injection, and an
// optional live price source with circuit-breaker fallback.
package market

import (
	"math/rand"
	"sync"
	"time"

	"github.com/autarch-dev/autarch/pkg/types"
)

// Provider is the pluggable market-data capability. Snapshot never
// fails; it always returns a value. Snapshots are defensive copies.
type Provider interface {
	Snapshot() types.MarketData
	InjectDip(percent float64)
	InjectRally(percent float64)
	Reset()
}

// sampleWindow keeps a short price/volume history so percent changes
// over 1m and 5m windows can be derived from sparse observations.
type sampleWindow struct {
	samples []sample
}

type sample struct {
	at     time.Time
	price  float64
	volume float64
}

const windowRetention = 5*time.Minute + 30*time.Second

func (w *sampleWindow) push(at time.Time, price, volume float64) {
	w.samples = append(w.samples, sample{at: at, price: price, volume: volume})
	cutoff := at.Add(-windowRetention)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	w.samples = w.samples[i:]
}

// at returns the oldest sample within the lookback horizon, or the
// oldest sample available when history is shorter than the horizon.
func (w *sampleWindow) at(now time.Time, lookback time.Duration) (sample, bool) {
	if len(w.samples) == 0 {
		return sample{}, false
	}
	cutoff := now.Add(-lookback)
	best := w.samples[0]
	for _, s := range w.samples {
		if s.at.After(cutoff) {
			break
		}
		best = s
	}
	return best, true
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// Simulator is a deterministic-when-seeded random-walk market. It is
// shared across agents; all access is serialized internally.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	basePrice float64
	price     float64
	volume    float64
	window    sampleWindow
	now       func() time.Time
}

// DefaultBasePrice is the walk's starting SOL price in USD.
const DefaultBasePrice = 150.0

// NewSimulator creates a simulator starting at DefaultBasePrice.
func NewSimulator(seed int64) *Simulator {
	return NewSimulatorAt(seed, DefaultBasePrice)
}

// NewSimulatorAt creates a simulator with an explicit base price.
func NewSimulatorAt(seed int64, basePrice float64) *Simulator {
	s := &Simulator{
		rng:       rand.New(rand.NewSource(seed)),
		basePrice: basePrice,
		price:     basePrice,
		volume:    1000,
		now:       time.Now,
	}
	return s
}

// Snapshot advances the walk one step and returns a frozen view.
func (s *Simulator) Snapshot() types.MarketData {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Drift ±0.5% with a weak pull back toward the base price.
	drift := (s.rng.Float64() - 0.5) / 100
	reversion := (s.basePrice - s.price) / s.basePrice * 0.01
	s.price *= 1 + drift + reversion
	s.volume *= 1 + (s.rng.Float64()-0.5)/10

	return s.observe(now)
}

// observe records the current point and derives the change fields.
// Caller holds the lock.
func (s *Simulator) observe(now time.Time) types.MarketData {
	s.window.push(now, s.price, s.volume)

	data := types.MarketData{
		Price:     s.price,
		Timestamp: now.UnixMilli(),
		Source:    types.MarketSourceSimulated,
	}
	if ref, ok := s.window.at(now, time.Minute); ok {
		data.PriceChange1m = percentChange(ref.price, s.price)
		data.VolumeChange1m = percentChange(ref.volume, s.volume)
	}
	if ref, ok := s.window.at(now, 5*time.Minute); ok {
		data.PriceChange5m = percentChange(ref.price, s.price)
	}
	return data
}

// InjectDip drops the price by the given percent immediately.
func (s *Simulator) InjectDip(percent float64) {
	s.shift(-percent)
}

// InjectRally raises the price by the given percent immediately.
func (s *Simulator) InjectRally(percent float64) {
	s.shift(percent)
}

func (s *Simulator) shift(percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price *= 1 + percent/100
	// Shocks come with volume.
	s.volume *= 1.5
	s.window.push(s.now(), s.price, s.volume)
}

// Reset returns the walk to its base price and clears history.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = s.basePrice
	s.volume = 1000
	s.window = sampleWindow{}
}
