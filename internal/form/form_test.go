package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsites/facturemanager/internal/tariff"
)

func TestCoerce(t *testing.T) {
	cases := map[string]float64{
		"":      0,
		"  ":    0,
		"12.5":  12.5,
		" 7 ":   7,
		"abc":   0,
		"1,5":   0,
		"NaN":   0,
		"-Inf":  0,
		"-3.25": -3.25,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Coerce(raw), "raw=%q", raw)
	}
}

func TestCoerceIndexAndMonths(t *testing.T) {
	assert.Equal(t, int64(328093), CoerceIndex("328093"))
	assert.Equal(t, int64(12), CoerceIndex("12.9"))
	assert.Zero(t, CoerceIndex("-4"))
	assert.Zero(t, CoerceIndex("1e30"))

	assert.Equal(t, 1, CoerceMonths(""))
	assert.Equal(t, 1, CoerceMonths("0"))
	assert.Equal(t, 1, CoerceMonths("-2"))
	assert.Equal(t, 3, CoerceMonths("3"))
}

func TestRecompute_LowVoltageFillsDerivedFields(t *testing.T) {
	f := New(tariff.RegimeLowVoltage)
	require.NoError(t, f.Set(FieldPreviousIndex, "1000"))
	require.NoError(t, f.Set(FieldCurrentIndex, "1250"))
	require.NoError(t, f.Set(FieldVATPercent, "0"))
	require.NoError(t, f.Set(FieldFixedFee, "0"))
	require.NoError(t, f.Set(FieldMunicipalSurchargePerKWh, "0"))
	require.NoError(t, f.Set(FieldEnergyTransitionFeePerKWh, "0"))

	out, err := f.Recompute(tariff.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, "250", out.Values[FieldConsumption])
	assert.Equal(t, "1", out.Values[FieldMonthsCovered])
	assert.InDelta(t, 200*0.195+50*0.239, out.AmountDue, 1e-9)
	assert.False(t, out.AmountOverridden)
	assert.Equal(t, 1, out.Input.LowVoltage.MonthsCovered)
}

func TestRecompute_TouchedAmountIsKept(t *testing.T) {
	f := New(tariff.RegimeLowVoltage)
	require.NoError(t, f.Set(FieldCurrentIndex, "300"))
	require.NoError(t, f.Set(FieldAmountDue, "99.5"))

	out, err := f.Recompute(tariff.DefaultSettings())
	require.NoError(t, err)

	assert.True(t, out.AmountOverridden)
	assert.Equal(t, 99.5, out.AmountDue)
	assert.Equal(t, "99.5", out.Values[FieldAmountDue])
	assert.NotEqual(t, 99.5, out.Result.AmountDue)
	assert.Equal(t, "300", out.Values[FieldConsumption])
}

func TestRecompute_TimeOfUseChannelOverrides(t *testing.T) {
	f := New(tariff.RegimeMediumVoltageTimeOfUse)
	evening := tariff.ChannelEvening
	require.NoError(t, f.Set(ChannelField(evening, FieldPreviousIndex), "0"))
	require.NoError(t, f.Set(ChannelField(evening, FieldCurrentIndex), "100"))
	require.NoError(t, f.Set(ChannelField(evening, "coefficient"), "2"))
	require.NoError(t, f.Set(ChannelField(evening, FieldUnitPrice), "0.5"))

	out, err := f.Recompute(tariff.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, 200.0, out.ConsumptionKWh)
	assert.Equal(t, 100.0, out.AmountDue)
	require.NotNil(t, out.Input.TimeOfUse)
	require.NotNil(t, out.Input.TimeOfUse.Evening.Coefficient)
	assert.Equal(t, 2.0, *out.Input.TimeOfUse.Evening.Coefficient)
	assert.Nil(t, out.Input.TimeOfUse.Day.Coefficient)
	assert.Equal(t, "200", out.Values[FieldConsumption])
}

func TestRecompute_FlatRateLoadLossAlwaysDerived(t *testing.T) {
	f := New(tariff.RegimeMediumVoltageFlatRate)
	require.NoError(t, f.Set(FieldPreviousIndex, "1483440"))
	require.NoError(t, f.Set(FieldCurrentIndex, "1489924"))
	assert.ErrorIs(t, f.Set(FieldLoadLoss, "7"), ErrReadOnlyField)

	f.Values[FieldLoadLoss] = "7"
	f.Touched = append(f.Touched, FieldLoadLoss)

	out, err := f.Recompute(tariff.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "130", out.Values[FieldLoadLoss])
	assert.Equal(t, 6614.0, out.ConsumptionKWh)
}

func TestRecompute_InvalidInputsBecomeZero(t *testing.T) {
	f := New(tariff.RegimeMediumVoltageTimeOfUse)
	f.Values[ChannelField(tariff.ChannelDay, FieldPreviousIndex)] = "garbage"
	f.Values[ChannelField(tariff.ChannelDay, FieldCurrentIndex)] = "100"
	f.Values[FieldPowerPremium] = "n/a"

	out, err := f.Recompute(tariff.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.ConsumptionKWh)
	assert.Zero(t, out.Input.TimeOfUse.PowerPremium)
	assert.InDelta(t, 100*0.222, out.AmountDue, 1e-9)
}

func TestRecompute_UnknownRegime(t *testing.T) {
	_, err := New("haute_tension").Recompute(tariff.DefaultSettings())
	assert.ErrorIs(t, err, tariff.ErrUnknownRegime)
}

func TestPrefill_OnlyEmptyUntouchedFields(t *testing.T) {
	f := New(tariff.RegimeMediumVoltageTimeOfUse)
	dayPrev := ChannelField(tariff.ChannelDay, FieldPreviousIndex)
	peakPrev := ChannelField(tariff.ChannelPeak, FieldPreviousIndex)
	nightPrev := ChannelField(tariff.ChannelNight, FieldPreviousIndex)

	f.Values[dayPrev] = "555"
	require.NoError(t, f.Set(peakPrev, ""))

	filled := f.Prefill(map[string]int64{
		dayPrev:   1000,
		peakPrev:  2000,
		nightPrev: 3000,
	})

	assert.Equal(t, []string{nightPrev}, filled)
	assert.Equal(t, "555", f.Values[dayPrev])
	assert.Equal(t, "", f.Values[peakPrev])
	assert.Equal(t, "3000", f.Values[nightPrev])
}

func TestNextPreviousIndexes(t *testing.T) {
	in := tariff.BillCalculationInput{
		Regime:   tariff.RegimeMediumVoltageFlatRate,
		FlatRate: &tariff.FlatRateInput{Reading: tariff.MeterReading{PreviousIndex: 10, CurrentIndex: 42}},
	}
	assert.Equal(t, map[string]int64{FieldPreviousIndex: 42}, NextPreviousIndexes(in))
}
