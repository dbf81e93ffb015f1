package tariff

import "strconv"

// maxIndexDigits is the widest counter whose capacity (10^n - 1) fits in an
// int64.
const maxIndexDigits = 18

// MeterReading is one physical counter read at the start and end of a
// billing period.
type MeterReading struct {
	PreviousIndex int64 `json:"previous_index" yaml:"previous_index"`
	CurrentIndex  int64 `json:"current_index" yaml:"current_index"`
}

// Consumption returns the index delta, accounting for counter rollover.
func (m MeterReading) Consumption() int64 {
	return ConsumptionWithRollover(m.PreviousIndex, m.CurrentIndex)
}

// RolledOver reports whether the counter wrapped past its capacity.
func (m MeterReading) RolledOver() bool {
	return m.CurrentIndex < m.PreviousIndex
}

// ConsumptionWithRollover returns currentIndex - previousIndex. When the
// current index is lower, the meter is assumed to have wrapped past a run of
// nines as wide as previousIndex, and the delta is computed across the wrap.
func ConsumptionWithRollover(previousIndex, currentIndex int64) int64 {
	if currentIndex >= previousIndex {
		return currentIndex - previousIndex
	}
	digits := digitCount(previousIndex)
	if digits == 0 || digits > maxIndexDigits {
		return currentIndex
	}
	maxValue := pow10(digits) - 1
	return (maxValue - previousIndex) + currentIndex + 1
}

// digitCount returns the number of decimal digits of n, or 0 when n is not a
// valid non-negative index.
func digitCount(n int64) int {
	if n < 0 {
		return 0
	}
	return len(strconv.FormatInt(n, 10))
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
