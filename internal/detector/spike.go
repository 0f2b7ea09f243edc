package detector

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"SpikeSentinel/internal/model"
)

// DetectSpikes returns the ascending indices of bars whose absolute close
// change exceeds threshold times the mean absolute change over the window
// ending at that bar. Bars before the first full window are never flagged.
func DetectSpikes(series *model.PriceSeries, window int, threshold float64) []int {
	closes := series.Closes()
	if window <= 0 || len(closes) <= window {
		return nil
	}
	abs := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		abs[i] = math.Abs(closes[i] - closes[i-1])
	}

	var spikes []int
	sum := 0.0
	for i := 1; i <= window; i++ {
		sum += abs[i]
	}
	for i := window; i < len(closes); i++ {
		if i > window {
			sum += abs[i] - abs[i-window]
		}
		mean := sum / float64(window)
		if abs[i] > threshold*mean {
			spikes = append(spikes, i)
		}
	}
	return spikes
}

// DetectSpikesStdDev flags bars whose absolute close change exceeds k sample
// standard deviations of the changes over the window ending at that bar.
func DetectSpikesStdDev(series *model.PriceSeries, window int, k float64) []bool {
	closes := series.Closes()
	flags := make([]bool, len(closes))
	if window <= 1 || len(closes) <= window {
		return flags
	}
	changes := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		changes[i] = closes[i] - closes[i-1]
	}
	for i := window; i < len(closes); i++ {
		std := stat.StdDev(changes[i-window+1:i+1], nil)
		flags[i] = math.Abs(changes[i]) > k*std
	}
	return flags
}

// SpikeAt reports whether index i is among the detected spikes.
func SpikeAt(spikes []int, i int) bool {
	j := sort.SearchInts(spikes, i)
	return j < len(spikes) && spikes[j] == i
}

// LatestSpikeIsCurrent reports whether the most recent spike is the last bar.
func LatestSpikeIsCurrent(spikes []int, n int) bool {
	return len(spikes) > 0 && spikes[len(spikes)-1] == n-1
}
