package chart

import (
	"fmt"
	"math"

	"candleView/internal/domain"
	"candleView/internal/ports"
)

// niceStepCap bounds the step-search loop so a degenerate span aborts
// instead of spinning.
const niceStepCap = 500

// Transform maps prices and bar indices to pixel coordinates for one
// snapshot. The zero value is unusable; build it with NewTransform.
type Transform struct {
	minPrice float64
	maxPrice float64
	logMin   float64
	logMax   float64
	mode     domain.ScaleMode

	visibleStart int
	visibleCount int
}

// NewTransform derives the pixel mapping from a snapshot's visible range
// and price span.
func NewTransform(snap Snapshot) Transform {
	t := Transform{
		minPrice:     snap.MinPrice,
		maxPrice:     snap.MaxPrice,
		mode:         snap.ScaleMode,
		visibleStart: snap.VisibleStart,
		visibleCount: snap.VisibleEnd - snap.VisibleStart,
	}
	if t.mode == domain.ScaleLog && snap.MinPrice > 0 && snap.MaxPrice > 0 {
		t.logMin = math.Log(snap.MinPrice)
		t.logMax = math.Log(snap.MaxPrice)
	}
	return t
}

// PriceToY maps a price onto the vertical pixel axis (0 at the top).
// The second return is false when the price is undrawable under the
// current mode: non-finite input, a non-positive price in log mode, or a
// degenerate span. Callers skip the element; no NaN ever leaves here.
func (t Transform) PriceToY(price, height float64) (float64, bool) {
	if !isFinite(price) || !isFinite(height) || height <= 0 {
		return 0, false
	}
	var lo, hi, v float64
	switch t.mode {
	case domain.ScaleLog:
		if price <= 0 || t.minPrice <= 0 || t.maxPrice <= 0 {
			return 0, false
		}
		lo, hi, v = t.logMin, t.logMax, math.Log(price)
	default:
		lo, hi, v = t.minPrice, t.maxPrice, price
	}
	span := hi - lo
	if !isFinite(span) || span <= 0 {
		return 0, false
	}
	y := height * (1 - (v-lo)/span)
	if !isFinite(y) {
		return 0, false
	}
	return y, true
}

// YToPrice inverts PriceToY for the same snapshot.
func (t Transform) YToPrice(y, height float64) (float64, bool) {
	if !isFinite(y) || !isFinite(height) || height <= 0 {
		return 0, false
	}
	var lo, hi float64
	switch t.mode {
	case domain.ScaleLog:
		if t.minPrice <= 0 || t.maxPrice <= 0 {
			return 0, false
		}
		lo, hi = t.logMin, t.logMax
	default:
		lo, hi = t.minPrice, t.maxPrice
	}
	span := hi - lo
	if !isFinite(span) || span <= 0 {
		return 0, false
	}
	v := lo + (1-y/height)*span
	if t.mode == domain.ScaleLog {
		v = math.Exp(v)
	}
	if !isFinite(v) {
		return 0, false
	}
	return v, true
}

// IndexToX maps a bar index to the horizontal center of its column.
// Linear in the index; indices outside the visible range land outside
// [0, width), which callers may clip.
func (t Transform) IndexToX(index int, width float64) float64 {
	if t.visibleCount <= 0 {
		return 0
	}
	return (float64(index-t.visibleStart) + 0.5) * (width / float64(t.visibleCount))
}

// SlotWidth returns the horizontal pixels available to one bar column.
func (t Transform) SlotWidth(width float64) float64 {
	if t.visibleCount <= 0 {
		return width
	}
	return width / float64(t.visibleCount)
}

// NiceStep picks the smallest increment from {1,2,5}x10^n that divides the
// span into at most maxTicks labels. The search walks upward from two
// decades below the span and gives up after niceStepCap iterations so a
// zero or non-finite span aborts instead of looping.
func NiceStep(span float64, maxTicks int) (float64, error) {
	op := "NiceStep"
	if maxTicks <= 0 {
		return 0, fmt.Errorf("%s: maxTicks %d: %w", op, maxTicks, ports.ErrInvalidRequest)
	}
	if !isFinite(span) || span <= 0 {
		return 0, fmt.Errorf("%s: span %v: %w", op, span, ports.ErrDegenerateSpan)
	}

	step := math.Pow(10, math.Floor(math.Log10(span))-2)
	if !isFinite(step) || step <= 0 {
		return 0, fmt.Errorf("%s: span %v: %w", op, span, ports.ErrDegenerateSpan)
	}
	mults := [...]float64{1, 2, 5}
	for i := 0; i < niceStepCap; i++ {
		candidate := step * mults[i%len(mults)]
		if span/candidate <= float64(maxTicks) {
			return candidate, nil
		}
		if i%len(mults) == len(mults)-1 {
			step *= 10
		}
	}
	return 0, fmt.Errorf("%s: no step found for span %v after %d iterations: %w", op, span, niceStepCap, ports.ErrDegenerateSpan)
}

// PriceTicks returns the label values covering [min,max] at the NiceStep
// stride. Values are chosen on the plain price span regardless of scale
// mode so labels stay round numbers; positioning through the transform is
// the caller's concern.
func PriceTicks(min, max float64, maxTicks int) ([]float64, error) {
	step, err := NiceStep(max-min, maxTicks)
	if err != nil {
		return nil, err
	}
	first := math.Ceil(min/step) * step
	ticks := make([]float64, 0, maxTicks+1)
	for v := first; v <= max+step/2 && len(ticks) <= maxTicks+1; v += step {
		ticks = append(ticks, v)
	}
	return ticks, nil
}

// timeSteps are the calendar-aware label strides, seconds, ascending.
var timeSteps = [...]int64{
	60, 5 * 60, 15 * 60, 30 * 60,
	3600, 2 * 3600, 3 * 3600, 6 * 3600, 12 * 3600,
	86400, 2 * 86400, 7 * 86400, 14 * 86400, 30 * 86400,
}

// TimeStep picks the smallest calendar stride that keeps the number of
// X-axis labels over the span at or below maxLabels.
func TimeStep(spanSeconds int64, maxLabels int) int64 {
	if maxLabels <= 0 {
		maxLabels = 1
	}
	for _, s := range timeSteps {
		if spanSeconds/s <= int64(maxLabels) {
			return s
		}
	}
	// Beyond the table, grow in 30-day units.
	s := timeSteps[len(timeSteps)-1]
	for spanSeconds/s > int64(maxLabels) {
		s += 30 * 86400
	}
	return s
}

// TimeTicks returns stride-aligned timestamps within [first,last].
func TimeTicks(first, last, stride int64) []int64 {
	if stride <= 0 || last < first {
		return nil
	}
	start := first
	if rem := start % stride; rem != 0 {
		start += stride - rem
	}
	ticks := make([]int64, 0, (last-start)/stride+1)
	for ts := start; ts <= last; ts += stride {
		ticks = append(ticks, ts)
	}
	return ticks
}

// StepDecimals returns the number of fractional digits needed to print
// values on a grid of the given step without truncation.
func StepDecimals(step float64) int {
	if !isFinite(step) || step <= 0 {
		return 2
	}
	if step >= 1 {
		return 0
	}
	d := int(math.Ceil(-math.Log10(step)))
	if d > 8 {
		d = 8
	}
	return d
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
