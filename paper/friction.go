package paper

import (
	"math/rand"
	"sync"
)

// ContractSize is one standard lot in base-currency units.
const ContractSize = 100_000

// Friction holds the market-friction parameters applied at fill and
// mark-to-market time. Spread and slippage are in pips so they scale
// correctly for JPY-quoted pairs.
type Friction struct {
	SlippageMinPips  float64
	SlippageMaxPips  float64
	SpreadPips       float64
	CommissionPerLot float64
	SwapPerLotDay    float64
	Leverage         float64
}

// DefaultFriction mirrors typical retail conditions on majors: 0.5-2 pips
// slippage, 2 pip spread, $7/lot commission, $2/lot/day swap, 1:100 leverage.
func DefaultFriction() Friction {
	return Friction{
		SlippageMinPips:  0.5,
		SlippageMaxPips:  2.0,
		SpreadPips:       2.0,
		CommissionPerLot: 7.0,
		SwapPerLotDay:    2.0,
		Leverage:         100,
	}
}

// Slippage draws an adverse fill deviation in pips. Production uses a seeded
// generator; tests inject a fixed value so fills are reproducible.
type Slippage interface {
	Pips() float64
}

type randomSlippage struct {
	mu       sync.Mutex
	rng      *rand.Rand
	min, max float64
}

// NewRandomSlippage returns a Slippage drawing uniformly from [min, max]
// using the given seed.
func NewRandomSlippage(min, max float64, seed int64) Slippage {
	if max < min {
		min, max = max, min
	}
	return &randomSlippage{
		rng: rand.New(rand.NewSource(seed)),
		min: min,
		max: max,
	}
}

func (s *randomSlippage) Pips() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.min + s.rng.Float64()*(s.max-s.min)
}

// FixedSlippage always returns the same deviation.
type FixedSlippage float64

func (s FixedSlippage) Pips() float64 { return float64(s) }
