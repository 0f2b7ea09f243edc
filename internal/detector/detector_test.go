package detector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpikeSentinel/internal/calculator"
	"SpikeSentinel/internal/model"
)

func seriesOf(closes ...float64) *model.PriceSeries {
	return model.NewSeriesFromCloses("TEST", model.M1, time.Unix(0, 0), closes)
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// alternating returns n closes swinging between lo and hi, starting at lo.
func alternating(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = lo
		} else {
			out[i] = hi
		}
	}
	return out
}

func TestClassifyMA_MonotonicRiseIsNeutral(t *testing.T) {
	series := seriesOf(linear(25, 100, 1)...)
	level, err := ClassifyMA(series, 10)
	require.NoError(t, err)
	assert.Equal(t, Neutral, level)
}

func TestClassifyMA_Deterministic(t *testing.T) {
	series := seriesOf(append(alternating(24, 98, 102), 103)...)
	first, err := ClassifyMA(series, 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ClassifyMA(series, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassifyMA_FreshCrosses(t *testing.T) {
	// Falling market, last bar pops above a still-falling MA.
	up := append(linear(20, 130, -1), 118)
	level, err := ClassifyMA(seriesOf(up...), 10)
	require.NoError(t, err)
	assert.Equal(t, Resistance, level)

	// Rising market, last bar drops below a still-rising MA.
	down := append(linear(20, 70, 1), 82)
	level, err = ClassifyMA(seriesOf(down...), 10)
	require.NoError(t, err)
	assert.Equal(t, Support, level)
}

func TestClassifyMA_SupportDowngradedOnFallingSlope(t *testing.T) {
	closes := append(linear(24, 100, 1), 110)
	level, err := ClassifyMA(seriesOf(closes...), 10)
	require.NoError(t, err)
	assert.Equal(t, Neutral, level)
}

func TestClassifyMA_BouncesMarkBoundary(t *testing.T) {
	above := append(alternating(24, 98, 102), 103)
	level, err := ClassifyMA(seriesOf(above...), 10)
	require.NoError(t, err)
	assert.Equal(t, Resistance, level)

	below := append(alternating(24, 102, 98), 97)
	level, err = ClassifyMA(seriesOf(below...), 10)
	require.NoError(t, err)
	assert.Equal(t, Support, level)
}

func TestClassifyMA_InsufficientData(t *testing.T) {
	level, err := ClassifyMA(seriesOf(linear(10, 100, 1)...), 10)
	assert.Equal(t, Neutral, level)
	assert.True(t, errors.Is(err, calculator.ErrInsufficientData))
}

func TestClassifyBollinger(t *testing.T) {
	support := append(alternating(24, 99, 101), 90)
	level, err := ClassifyBollinger(seriesOf(support...), 20, 2)
	require.NoError(t, err)
	assert.Equal(t, Support, level)

	resistance := append(alternating(24, 99, 101), 110)
	level, err = ClassifyBollinger(seriesOf(resistance...), 20, 2)
	require.NoError(t, err)
	assert.Equal(t, Resistance, level)

	quiet := alternating(25, 99, 101)
	level, err = ClassifyBollinger(seriesOf(quiet...), 20, 2)
	require.NoError(t, err)
	assert.Equal(t, Neutral, level)

	_, err = ClassifyBollinger(seriesOf(quiet[:20]...), 20, 2)
	assert.ErrorIs(t, err, calculator.ErrInsufficientData)
}

func TestIsNear(t *testing.T) {
	tests := []struct {
		price, level, tol float64
		want              bool
	}{
		{101, 100, 0.01, true},
		{99, 100, 0.01, true},
		{102, 100, 0.01, false},
		{100, 0, 0.5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNear(tt.price, tt.level, tt.tol), "price=%v level=%v", tt.price, tt.level)
	}
}

func TestNearMA(t *testing.T) {
	near, err := NearMA(seriesOf(100, 100, 100, 100, 103), 5, 0.05)
	require.NoError(t, err)
	assert.True(t, near)

	near, err = NearMA(seriesOf(100, 100, 100, 100, 130), 5, 0.05)
	require.NoError(t, err)
	assert.False(t, near)

	_, err = NearMA(seriesOf(100, 101), 5, 0.05)
	assert.ErrorIs(t, err, calculator.ErrInsufficientData)
}

func TestNearBand(t *testing.T) {
	bands := calculator.Bands{Upper: 110, Middle: 100, Lower: 90}
	assert.Equal(t, BandUpper, NearBand(109, bands, 0.02))
	assert.Equal(t, BandLower, NearBand(91, bands, 0.02))
	assert.Equal(t, BandNone, NearBand(100, bands, 0.02))
}

func TestDetectSpikes(t *testing.T) {
	closes := append(alternating(30, 100, 101), 111)
	series := seriesOf(closes...)

	spikes := DetectSpikes(series, 20, 1.5)
	assert.Equal(t, []int{30}, spikes)
	assert.True(t, SpikeAt(spikes, 30))
	assert.False(t, SpikeAt(spikes, 29))
	assert.True(t, LatestSpikeIsCurrent(spikes, series.Len()))
	assert.False(t, LatestSpikeIsCurrent(spikes, series.Len()+1))

	assert.Nil(t, DetectSpikes(seriesOf(1, 2, 3), 20, 1.5))
}

func TestDetectSpikesStdDev(t *testing.T) {
	closes := append(alternating(30, 100, 101), 111)
	flags := DetectSpikesStdDev(seriesOf(closes...), 20, 2)
	require.Len(t, flags, 31)
	assert.True(t, flags[30])
	for i := 0; i < 30; i++ {
		assert.False(t, flags[i], "bar %d should not be flagged", i)
	}
}
