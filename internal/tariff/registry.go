package tariff

import (
	"fmt"
	"sort"
	"sync"
)

// CalculatorFunc prices the regime section of a bill input.
type CalculatorFunc func(in BillCalculationInput, s Settings) (Result, error)

// CalculatorConfig describes a registered regime calculator.
type CalculatorConfig struct {
	Regime    Regime
	Calculate CalculatorFunc
}

var (
	calculatorsMu sync.RWMutex
	calculators   = make(map[Regime]CalculatorConfig)
)

// RegisterCalculator registers the calculator for a regime. Each calculator
// file calls it from init().
func RegisterCalculator(cfg CalculatorConfig) {
	if cfg.Regime == "" {
		panic("tariff: RegisterCalculator called with empty regime")
	}
	if cfg.Calculate == nil {
		panic(fmt.Sprintf("tariff: RegisterCalculator(%q) called with nil Calculate", cfg.Regime))
	}

	calculatorsMu.Lock()
	defer calculatorsMu.Unlock()

	if _, exists := calculators[cfg.Regime]; exists {
		panic(fmt.Sprintf("tariff: RegisterCalculator called twice for regime %q", cfg.Regime))
	}
	calculators[cfg.Regime] = cfg
}

// GetCalculator returns the calculator registered for a regime.
func GetCalculator(r Regime) (CalculatorConfig, bool) {
	calculatorsMu.RLock()
	defer calculatorsMu.RUnlock()

	cfg, ok := calculators[r]
	return cfg, ok
}

// ListRegimes returns the registered regimes in sorted order.
func ListRegimes() []Regime {
	calculatorsMu.RLock()
	defer calculatorsMu.RUnlock()

	out := make([]Regime, 0, len(calculators))
	for r := range calculators {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
