package garp

import (
	"math/rand"

	"nichemodeller/internal/occurrence"
)

const (
	histogramBins = 256

	// maxExcludedLevel bounds the share of points a histogram range may
	// leave out on each tail.
	maxExcludedLevel = 0.1
)

// BioclimHistogram counts, per class and dimension, how many points fall in
// each of 256 bins spanning the normalized [-1, 1] interval.
type BioclimHistogram struct {
	counts [2][][histogramBins]int
	depend [2]int
}

// NewBioclimHistogram bins occs; a point is a presence when its abundance is
// positive.
func NewBioclimHistogram(occs []*occurrence.Occurrence) *BioclimHistogram {
	h := &BioclimHistogram{}
	if len(occs) == 0 {
		return h
	}
	dims := len(occs[0].Environment())
	h.counts[0] = make([][histogramBins]int, dims)
	h.counts[1] = make([][histogramBins]int, dims)
	for _, o := range occs {
		class := 0
		if o.Abundance > 0 {
			class = 1
		}
		h.depend[class]++
		env := o.Environment()
		for d := 0; d < dims && d < len(env); d++ {
			h.counts[class][d][bin(env[d])]++
		}
	}
	return h
}

func bin(v float64) int {
	b := int((v+1)/2*253) + 1
	if b < 0 {
		return 0
	}
	if b > histogramBins-1 {
		return histogramBins - 1
	}
	return b
}

// Count returns the number of points of the class (1 presence, 0 absence).
func (h *BioclimHistogram) Count(prediction float64) int {
	return h.depend[classOf(prediction)]
}

func (h *BioclimHistogram) Dimensions() int {
	return len(h.counts[0])
}

func classOf(prediction float64) int {
	if prediction == 1 {
		return 1
	}
	return 0
}

// Range cuts a random share of up to 10% of the class points from each tail
// of the layer distribution and returns the remaining interval.
func (h *BioclimHistogram) Range(rng *rand.Rand, prediction float64, layer int) (float64, float64) {
	level := rng.Float64() * maxExcludedLevel
	return h.rangeAt(prediction, layer, level)
}

func (h *BioclimHistogram) rangeAt(prediction float64, layer int, level float64) (float64, float64) {
	class := classOf(prediction)
	if layer < 0 || layer >= len(h.counts[class]) {
		return -1, 1
	}
	bins := h.counts[class][layer]
	excluded := int(float64(h.depend[class]) * level)

	lower, upper := 0, histogramBins-1
	sum := 0
	for n := 0; n < histogramBins; n++ {
		sum += bins[n]
		if sum > excluded {
			lower = n
			break
		}
	}
	sum = 0
	for n := histogramBins - 1; n >= 0; n-- {
		sum += bins[n]
		if sum > excluded {
			upper = n
			break
		}
	}
	return float64(lower)/255*2 - 1, float64(upper)/255*2 - 1
}
