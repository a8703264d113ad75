package chart

import (
	"math"
	"testing"

	"candleView/internal/domain"
	"candleView/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearSnap(min, max float64, start, end int) Snapshot {
	return Snapshot{
		MinPrice:     min,
		MaxPrice:     max,
		ScaleMode:    domain.ScaleLinear,
		VisibleStart: start,
		VisibleEnd:   end,
	}
}

func logSnap(min, max float64, start, end int) Snapshot {
	s := linearSnap(min, max, start, end)
	s.ScaleMode = domain.ScaleLog
	return s
}

func TestTransform_PriceToY_Linear(t *testing.T) {
	tr := NewTransform(linearSnap(100, 200, 0, 10))
	height := 400.0

	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{name: "min maps to bottom", price: 100, want: 400},
		{name: "max maps to top", price: 200, want: 0},
		{name: "midpoint maps to middle", price: 150, want: 200},
		{name: "quarter above min", price: 125, want: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tr.PriceToY(tt.price, height)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTransform_PriceToY_Log(t *testing.T) {
	tr := NewTransform(logSnap(1, 100, 0, 10))
	height := 100.0

	// Equal ratios take equal pixel distance in log mode: 1 -> 10 -> 100.
	y10, ok := tr.PriceToY(10, height)
	require.True(t, ok)
	assert.InDelta(t, 50, y10, 1e-9)

	yMin, ok := tr.PriceToY(1, height)
	require.True(t, ok)
	assert.InDelta(t, 100, yMin, 1e-9)

	yMax, ok := tr.PriceToY(100, height)
	require.True(t, ok)
	assert.InDelta(t, 0, yMax, 1e-9)
}

func TestTransform_PriceToY_Monotonic(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{name: "linear", snap: linearSnap(50, 950, 0, 20)},
		{name: "log", snap: logSnap(0.5, 4000, 0, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransform(tt.snap)
			prev := math.Inf(1)
			for p := tt.snap.MinPrice; p <= tt.snap.MaxPrice; p += (tt.snap.MaxPrice - tt.snap.MinPrice) / 50 {
				y, ok := tr.PriceToY(p, 300)
				require.True(t, ok, "price %v must be drawable", p)
				assert.Less(t, y, prev, "higher price must map to smaller y")
				prev = y
			}
		})
	}
}

func TestTransform_PriceToY_Undrawable(t *testing.T) {
	tests := []struct {
		name   string
		snap   Snapshot
		price  float64
		height float64
	}{
		{name: "nan price", snap: linearSnap(1, 2, 0, 1), price: math.NaN(), height: 100},
		{name: "infinite price", snap: linearSnap(1, 2, 0, 1), price: math.Inf(1), height: 100},
		{name: "zero height", snap: linearSnap(1, 2, 0, 1), price: 1.5, height: 0},
		{name: "degenerate span", snap: linearSnap(5, 5, 0, 1), price: 5, height: 100},
		{name: "log zero price", snap: logSnap(1, 2, 0, 1), price: 0, height: 100},
		{name: "log negative price", snap: logSnap(1, 2, 0, 1), price: -3, height: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransform(tt.snap)
			_, ok := tr.PriceToY(tt.price, tt.height)
			assert.False(t, ok)
		})
	}
}

func TestTransform_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{name: "linear", snap: linearSnap(1800, 2400, 0, 30)},
		{name: "log", snap: logSnap(0.02, 90000, 0, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransform(tt.snap)
			for _, p := range []float64{tt.snap.MinPrice, tt.snap.MaxPrice, (tt.snap.MinPrice + tt.snap.MaxPrice) / 2} {
				y, ok := tr.PriceToY(p, 512)
				require.True(t, ok)
				back, ok := tr.YToPrice(y, 512)
				require.True(t, ok)
				assert.InDelta(t, p, back, p*1e-9)
			}
		})
	}
}

func TestTransform_IndexToX(t *testing.T) {
	tr := NewTransform(linearSnap(1, 2, 40, 50))
	width := 100.0 // 10 visible bars, slot width 10

	tests := []struct {
		name  string
		index int
		want  float64
	}{
		{name: "first visible centers in first slot", index: 40, want: 5},
		{name: "second visible", index: 41, want: 15},
		{name: "last visible", index: 49, want: 95},
		{name: "before window lands negative", index: 39, want: -5},
		{name: "after window lands past width", index: 50, want: 105},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tr.IndexToX(tt.index, width), 1e-9)
		})
	}

	assert.InDelta(t, 10.0, tr.SlotWidth(width), 1e-9)
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		name     string
		span     float64
		maxTicks int
		want     float64
	}{
		{name: "span 100 eight ticks", span: 100, maxTicks: 8, want: 20},
		{name: "span 1 ten ticks", span: 1, maxTicks: 10, want: 0.1},
		{name: "span just under one", span: 0.55, maxTicks: 5, want: 0.2},
		{name: "wide span", span: 45000, maxTicks: 6, want: 10000},
		{name: "tiny span", span: 0.0004, maxTicks: 4, want: 0.0001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NiceStep(tt.span, tt.maxTicks)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.want*1e-9)
		})
	}
}

func TestNiceStep_Errors(t *testing.T) {
	tests := []struct {
		name     string
		span     float64
		maxTicks int
		wantErr  error
	}{
		{name: "zero span", span: 0, maxTicks: 8, wantErr: ports.ErrDegenerateSpan},
		{name: "negative span", span: -4, maxTicks: 8, wantErr: ports.ErrDegenerateSpan},
		{name: "nan span", span: math.NaN(), maxTicks: 8, wantErr: ports.ErrDegenerateSpan},
		{name: "infinite span", span: math.Inf(1), maxTicks: 8, wantErr: ports.ErrDegenerateSpan},
		{name: "zero ticks", span: 10, maxTicks: 0, wantErr: ports.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NiceStep(tt.span, tt.maxTicks)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPriceTicks(t *testing.T) {
	ticks, err := PriceTicks(98.5, 103.2, 8)
	require.NoError(t, err)
	require.Equal(t, []float64{99, 100, 101, 102, 103}, ticks)

	// Every tick is a multiple of the step and inside the span.
	for _, v := range ticks {
		assert.GreaterOrEqual(t, v, 98.5)
		assert.LessOrEqual(t, v, 103.2+0.5)
	}

	_, err = PriceTicks(5, 5, 8)
	assert.ErrorIs(t, err, ports.ErrDegenerateSpan)
}

func TestTimeStep(t *testing.T) {
	tests := []struct {
		name      string
		span      int64
		maxLabels int
		want      int64
	}{
		{name: "four hours six labels", span: 4 * 3600, maxLabels: 6, want: 3600},
		{name: "one day six labels", span: 86400, maxLabels: 6, want: 6 * 3600},
		{name: "forty days ten labels", span: 40 * 86400, maxLabels: 10, want: 7 * 86400},
		{name: "one hour four labels", span: 3600, maxLabels: 4, want: 15 * 60},
		{name: "spans beyond table grow in month units", span: 3000 * 86400, maxLabels: 4, want: 630 * 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeStep(tt.span, tt.maxLabels))
		})
	}
}

func TestTimeTicks(t *testing.T) {
	tests := []struct {
		name   string
		first  int64
		last   int64
		stride int64
		want   []int64
	}{
		{name: "aligns up to stride", first: 1000, last: 2000, stride: 300, want: []int64{1200, 1500, 1800}},
		{name: "already aligned", first: 1200, last: 1800, stride: 300, want: []int64{1200, 1500, 1800}},
		{name: "empty when stride zero", first: 0, last: 100, stride: 0, want: nil},
		{name: "empty when reversed", first: 200, last: 100, stride: 50, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimeTicks(tt.first, tt.last, tt.stride)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStepDecimals(t *testing.T) {
	tests := []struct {
		step float64
		want int
	}{
		{step: 20, want: 0},
		{step: 1, want: 0},
		{step: 0.1, want: 1},
		{step: 0.05, want: 2},
		{step: 0.001, want: 3},
		{step: 0, want: 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StepDecimals(tt.step), "step %v", tt.step)
	}
}
