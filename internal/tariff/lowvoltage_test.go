package tariff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

// bareLowVoltage prices tiers only: no fee, no tax, no surcharge.
func bareLowVoltage() BasseTensionSettings {
	s := DefaultSettings().BasseTension
	s.FixedFee = 0
	s.VATPercent = 0
	s.MunicipalSurchargePerKWh = 0
	s.EnergyTransitionFeePerKWh = 0
	return s
}

func TestCalculateLowVoltage_GoldenScenario(t *testing.T) {
	s := bareLowVoltage()
	s.FixedFee = 28.0
	s.VATPercent = 5.32

	res := CalculateLowVoltage(LowVoltageInput{
		Reading:       MeterReading{PreviousIndex: 0, CurrentIndex: 328093},
		MonthsCovered: 1,
	}, s)

	assert.Equal(t, 328093.0, res.ConsumptionKWh)
	// tiers: 200*0.195 + 100*0.239 + 200*0.330 + 327593*0.408 = 133786.844
	// subtotal 133814.844, VAT 5.32%
	assert.InDelta(t, 140933.7937008, res.AmountDue, 1e-6)
	assert.Equal(t, "140933.794", FormatMillimes(res.AmountDue))

	tier4, ok := res.Line("tier_4")
	require.True(t, ok)
	assert.InDelta(t, 327593.0, tier4.Quantity, 1e-9)
	assert.False(t, res.Rollover)
}

func TestCalculateLowVoltage_SingleMonthHasNoProrationEffect(t *testing.T) {
	s := bareLowVoltage()
	for _, kwh := range []int64{0, 150, 200, 250, 300, 420, 500, 1234} {
		res := CalculateLowVoltage(LowVoltageInput{
			Reading:       MeterReading{CurrentIndex: kwh},
			MonthsCovered: 1,
		}, s)
		want := 0.0
		for i, q := range SplitTiers(float64(kwh), s.TierBounds) {
			want += q * s.TierUnitPrices[i]
		}
		assert.InDelta(t, want, res.AmountDue, 1e-9, "kwh=%d", kwh)
	}
}

func TestCalculateLowVoltage_ProratesTiersPerMonth(t *testing.T) {
	res := CalculateLowVoltage(LowVoltageInput{
		Reading:       MeterReading{PreviousIndex: 1000, CurrentIndex: 1900},
		MonthsCovered: 3,
	}, bareLowVoltage())

	// 300 kWh a month: tiers 1 and 2 only, three times over.
	assert.Equal(t, 900.0, res.ConsumptionKWh)
	assert.InDelta(t, (200*0.195+100*0.239)*3, res.AmountDue, 1e-9)
	tier3, _ := res.Line("tier_3")
	assert.Zero(t, tier3.Amount)
}

func TestCalculateLowVoltage_SurchargesApplyToTotalConsumption(t *testing.T) {
	s := bareLowVoltage()
	s.MunicipalSurchargePerKWh = 0.01
	s.EnergyTransitionFeePerKWh = 0.02

	res := CalculateLowVoltage(LowVoltageInput{
		Reading:       MeterReading{CurrentIndex: 600},
		MonthsCovered: 2,
	}, s)

	m, _ := res.Line("municipal_surcharge")
	tr, _ := res.Line("energy_transition_fee")
	assert.InDelta(t, 6.0, m.Amount, 1e-9)
	assert.InDelta(t, 12.0, tr.Amount, 1e-9)
	assert.InDelta(t, 200*0.195*2+100*0.239*2+18, res.AmountDue, 1e-9)
}

func TestCalculateLowVoltage_MonotonicAndContinuous(t *testing.T) {
	s := bareLowVoltage()
	amount := func(kwh float64) float64 {
		total := 0.0
		for i, q := range SplitTiers(kwh, s.TierBounds) {
			total += q * s.TierUnitPrices[i]
		}
		return total
	}

	prev := -1.0
	for kwh := 0.0; kwh <= 900; kwh += 0.5 {
		a := amount(kwh)
		assert.GreaterOrEqual(t, a, prev, "kwh=%v", kwh)
		prev = a
	}

	const eps = 1e-6
	for _, b := range s.TierBounds {
		assert.InDelta(t, amount(b), amount(b+eps), 1e-5, "jump at %v", b)
		assert.InDelta(t, amount(b-eps), amount(b), 1e-5, "jump at %v", b)
	}
}

func TestCalculateLowVoltage_ZeroConsumptionLeavesFeesAndTaxes(t *testing.T) {
	s := DefaultSettings().BasseTension
	res := CalculateLowVoltage(LowVoltageInput{
		Reading:       MeterReading{PreviousIndex: 5123, CurrentIndex: 5123},
		MonthsCovered: 1,
	}, s)

	assert.Zero(t, res.ConsumptionKWh)
	assert.InDelta(t, s.FixedFee*(1+s.VATPercent/100), res.AmountDue, 1e-9)
}

func TestCalculateLowVoltage_RolloverReading(t *testing.T) {
	res := CalculateLowVoltage(LowVoltageInput{
		Reading:       MeterReading{PreviousIndex: 99998, CurrentIndex: 2},
		MonthsCovered: 1,
	}, bareLowVoltage())

	assert.Equal(t, 4.0, res.ConsumptionKWh)
	assert.True(t, res.Rollover)
	assert.InDelta(t, 4*0.195, res.AmountDue, 1e-9)
}

func TestCalculateLowVoltage_OverridesSingleTierPrice(t *testing.T) {
	in := LowVoltageInput{
		Reading:       MeterReading{CurrentIndex: 250},
		MonthsCovered: 1,
	}
	in.Overrides.TierUnitPrices[0] = ptr(0.1)

	res := CalculateLowVoltage(in, bareLowVoltage())
	assert.InDelta(t, 200*0.1+50*0.239, res.AmountDue, 1e-9)
}

func TestCalculateLowVoltage_ZeroMonthsTreatedAsOne(t *testing.T) {
	s := bareLowVoltage()
	zero := CalculateLowVoltage(LowVoltageInput{Reading: MeterReading{CurrentIndex: 420}}, s)
	one := CalculateLowVoltage(LowVoltageInput{Reading: MeterReading{CurrentIndex: 420}, MonthsCovered: 1}, s)
	assert.Equal(t, one.AmountDue, zero.AmountDue)
}

func TestSplitTiers_CustomBands(t *testing.T) {
	got := SplitTiers(260, [3]float64{50, 100, 200})
	assert.Equal(t, [4]float64{50, 50, 100, 60}, got)
}
