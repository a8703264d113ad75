package chart

import (
	"fmt"
	"math"

	"candleView/internal/domain"
	"candleView/internal/ports"
)

// Config tunes the viewport's windowing and padding behavior.
// Zero values fall back to the defaults below.
type Config struct {
	Granularity    domain.Granularity
	DefaultWindow  int // bars shown after a seed
	MinVisibleBars int // hard lower bound on the visible window width

	// Linear-mode padding: pad = max(span*PadFrac, mid*PadFloorFrac).
	LinearPadFrac      float64
	LinearPadFloorFrac float64
	// Log-mode padding is multiplicative: [low/factor, high*factor].
	LogPadFactor float64
	// Fallback range around the last close when the span collapses.
	FallbackPadFrac float64
}

const (
	defaultWindowBars     = 120
	defaultMinVisibleBars = 5
	defaultLinearPadFrac  = 0.05
	defaultLinearPadFloor = 0.001
	defaultLogPadFactor   = 1.02
	defaultFallbackPad    = 0.10
)

func (c *Config) setDefaults() {
	if c.Granularity <= 0 {
		c.Granularity = domain.Gran1h
	}
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = defaultWindowBars
	}
	if c.MinVisibleBars <= 0 {
		c.MinVisibleBars = defaultMinVisibleBars
	}
	if c.LinearPadFrac <= 0 {
		c.LinearPadFrac = defaultLinearPadFrac
	}
	if c.LinearPadFloorFrac <= 0 {
		c.LinearPadFloorFrac = defaultLinearPadFloor
	}
	if c.LogPadFactor <= 1 {
		c.LogPadFactor = defaultLogPadFactor
	}
	if c.FallbackPadFrac <= 0 {
		c.FallbackPadFrac = defaultFallbackPad
	}
}

// Viewport is the single mutable record behind the chart: the bar series,
// the visible window, the price span, the axis mode, and the latest
// streamed price. It is not safe for concurrent use; the owning service
// serializes every mutation and snapshot.
type Viewport struct {
	cfg Config

	bars         []domain.Bar
	visibleStart int
	visibleEnd   int
	minPrice     float64
	maxPrice     float64
	scaleMode    domain.ScaleMode
	granularity  domain.Granularity

	liveTick      float64
	liveSet       bool
	liveVisible   bool
	timeFormat12h bool
}

// NewViewport creates an empty viewport with the configured defaults.
func NewViewport(cfg Config) *Viewport {
	cfg.setDefaults()
	return &Viewport{
		cfg:         cfg,
		scaleMode:   domain.ScaleLinear,
		granularity: cfg.Granularity,
	}
}

// Snapshot is the read-only copy handed to a render pass. Scalar fields
// are copied by value; the bar slice is shared, which is safe because
// mutations and renders are serialized by the owning service.
type Snapshot struct {
	Bars         []domain.Bar
	VisibleStart int
	VisibleEnd   int
	MinPrice     float64
	MaxPrice     float64
	ScaleMode    domain.ScaleMode
	Granularity  domain.Granularity

	LiveTick      float64
	LiveSet       bool
	LiveVisible   bool
	TimeFormat12h bool
}

// HasData reports whether any bars are loaded.
func (s Snapshot) HasData() bool { return len(s.Bars) > 0 }

// VisibleBars returns the bars inside the visible window.
func (s Snapshot) VisibleBars() []domain.Bar { return s.Bars[s.VisibleStart:s.VisibleEnd] }

// Validate checks the render preconditions: a sane visible window and a
// usable price span for the active mode. A violation aborts the whole
// render pass; it is never clamped mid-draw.
func (s Snapshot) Validate() error {
	op := "Snapshot.Validate"
	if !s.HasData() {
		return nil
	}
	if s.VisibleStart < 0 || s.VisibleStart >= s.VisibleEnd || s.VisibleEnd > len(s.Bars) {
		return fmt.Errorf("%s: window [%d,%d) over %d bars: %w", op, s.VisibleStart, s.VisibleEnd, len(s.Bars), ports.ErrInvalidVisibleRange)
	}
	if !isFinite(s.MinPrice) || !isFinite(s.MaxPrice) || s.MinPrice >= s.MaxPrice {
		return fmt.Errorf("%s: range [%v,%v]: %w", op, s.MinPrice, s.MaxPrice, ports.ErrInvalidPriceRange)
	}
	if s.ScaleMode == domain.ScaleLog && s.MinPrice <= 0 {
		return fmt.Errorf("%s: log scale with min %v: %w", op, s.MinPrice, ports.ErrInvalidPriceRange)
	}
	return nil
}

// Snapshot returns the current state for a render pass.
func (v *Viewport) Snapshot() Snapshot {
	return Snapshot{
		Bars:          v.bars,
		VisibleStart:  v.visibleStart,
		VisibleEnd:    v.visibleEnd,
		MinPrice:      v.minPrice,
		MaxPrice:      v.maxPrice,
		ScaleMode:     v.scaleMode,
		Granularity:   v.granularity,
		LiveTick:      v.liveTick,
		LiveSet:       v.liveSet,
		LiveVisible:   v.liveVisible,
		TimeFormat12h: v.timeFormat12h,
	}
}

// HasData reports whether any bars are loaded.
func (v *Viewport) HasData() bool { return len(v.bars) > 0 }

// Granularity returns the configured bucket width.
func (v *Viewport) Granularity() domain.Granularity { return v.granularity }

// ScaleMode returns the active price-axis mode.
func (v *Viewport) ScaleMode() domain.ScaleMode { return v.scaleMode }

// TimeFormat12h returns the time-label preference.
func (v *Viewport) TimeFormat12h() bool { return v.timeFormat12h }

// BarCount returns the length of the loaded series.
func (v *Viewport) BarCount() int { return len(v.bars) }

// Seed replaces the bar series wholesale, anchors the visible window to
// the most recent defaultWindow bars, and fits the price range to that
// window. An empty series leaves the viewport in an explicit no-data
// state rather than a degenerate numeric one.
func (v *Viewport) Seed(bars []domain.Bar) {
	v.bars = bars
	v.liveSet = false
	if len(bars) == 0 {
		v.visibleStart, v.visibleEnd = 0, 0
		v.minPrice, v.maxPrice = 0, 0
		return
	}
	window := v.cfg.DefaultWindow
	if window > len(bars) {
		window = len(bars)
	}
	v.visibleEnd = len(bars)
	v.visibleStart = v.visibleEnd - window
	v.fitPriceRange()
}

// SetGranularity records the bucket width of the series about to be
// seeded. Callers reseed immediately afterwards; the old bars are
// meaningless under the new width.
func (v *Viewport) SetGranularity(g domain.Granularity) {
	if g > 0 {
		v.granularity = g
	}
}

// AppendBar extends the series with the next bucket. This is the hook for
// the external scheduler that owns new-bucket creation; in-bucket price
// movement arrives through PatchTailBar instead. When the window was
// anchored to the live edge it slides forward to keep tracking it.
func (v *Viewport) AppendBar(bar domain.Bar) error {
	op := "Viewport.AppendBar"
	if !bar.IsValid() {
		return fmt.Errorf("%s: bar at %d has non-finite prices: %w", op, bar.Timestamp, ports.ErrInvalidRequest)
	}
	if len(v.bars) > 0 {
		want := v.bars[len(v.bars)-1].Timestamp + int64(v.granularity)
		if bar.Timestamp != want {
			return fmt.Errorf("%s: got %d, want %d: %w", op, bar.Timestamp, want, ports.ErrNonContiguousBar)
		}
	}
	atLiveEdge := v.visibleEnd == len(v.bars)
	v.bars = append(v.bars, bar)
	if len(v.bars) == 1 {
		v.visibleStart, v.visibleEnd = 0, 1
		v.fitPriceRange()
		return nil
	}
	if atLiveEdge {
		v.visibleEnd++
		if v.visibleEnd-v.visibleStart > v.cfg.DefaultWindow {
			v.visibleStart++
		}
		v.fitPriceRange()
	}
	return nil
}

// PatchTailBar is the sole mutation path for live prices. The latest
// streamed price is always recorded for the marker; it folds into the
// trailing bar only when ts falls inside that bar's bucket. Folding
// replaces close unconditionally and widens high/low only outward. Open
// and all earlier bars are never touched. Returns whether a fold
// happened.
func (v *Viewport) PatchTailBar(price float64, ts int64) bool {
	if !isFinite(price) {
		return false
	}
	v.liveTick, v.liveSet = price, true
	if len(v.bars) == 0 {
		return false
	}
	last := &v.bars[len(v.bars)-1]
	if ts < last.Timestamp || ts >= last.Timestamp+int64(v.granularity) {
		return false
	}
	if price > last.High {
		last.High = price
	}
	if price < last.Low {
		last.Low = price
	}
	last.Close = price
	return true
}

// SetVisibleRange moves the visible window. Out-of-bounds requests are
// clamped, preserving the requested width where possible and never
// shrinking below the minimum. The price range refits to the new window
// so panning keeps the candles framed.
func (v *Viewport) SetVisibleRange(start, end int) error {
	op := "Viewport.SetVisibleRange"
	if len(v.bars) == 0 {
		return fmt.Errorf("%s: %w", op, ports.ErrNoData)
	}
	minVis := v.cfg.MinVisibleBars
	if minVis > len(v.bars) {
		minVis = len(v.bars)
	}
	width := end - start
	if width < minVis {
		width = minVis
	}
	if width > len(v.bars) {
		width = len(v.bars)
	}
	if start < 0 {
		start = 0
	}
	if start+width > len(v.bars) {
		start = len(v.bars) - width
	}
	v.visibleStart, v.visibleEnd = start, start+width
	v.fitPriceRange()
	return nil
}

// SetPriceRange sets the vertical span explicitly. Rejected outright when
// the span is non-finite, inverted, or non-positive under log mode; the
// previous range stays in force.
func (v *Viewport) SetPriceRange(min, max float64) error {
	op := "Viewport.SetPriceRange"
	if !isFinite(min) || !isFinite(max) || min >= max {
		return fmt.Errorf("%s: [%v,%v]: %w", op, min, max, ports.ErrInvalidPriceRange)
	}
	if v.scaleMode == domain.ScaleLog && min <= 0 {
		return fmt.Errorf("%s: log scale requires min > 0, got %v: %w", op, min, ports.ErrInvalidPriceRange)
	}
	v.minPrice, v.maxPrice = min, max
	return nil
}

// SetScaleMode switches the price-axis transform. Entering log mode with
// a non-positive floor refits the range from the visible window, which
// substitutes a positive floor before any position is computed.
func (v *Viewport) SetScaleMode(mode domain.ScaleMode) {
	if mode != domain.ScaleLinear && mode != domain.ScaleLog {
		return
	}
	v.scaleMode = mode
	if mode == domain.ScaleLog && v.minPrice <= 0 && len(v.bars) > 0 {
		v.fitPriceRange()
	}
}

// SetTimeFormat12h sets the time-label preference.
func (v *Viewport) SetTimeFormat12h(on bool) { v.timeFormat12h = on }

// SetLiveVisible shows or hides the live marker. Hiding also drops the
// recorded tick so a later resubscribe cannot surface a stale price.
func (v *Viewport) SetLiveVisible(on bool) {
	v.liveVisible = on
	if !on {
		v.liveSet = false
	}
}

// fitPriceRange recomputes min/max from the visible window with
// scale-appropriate padding. A collapsed span or, in log mode, a window
// with no positive lows falls back to a band around the last close.
func (v *Viewport) fitPriceRange() {
	window := v.bars[v.visibleStart:v.visibleEnd]
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range window {
		if !b.IsValid() {
			continue
		}
		if v.scaleMode == domain.ScaleLog && b.Low <= 0 {
			// Positive floor substitution: non-positive lows cannot
			// anchor a log axis.
			if b.High > 0 && b.High < lo {
				lo = b.High
			}
		} else if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}

	mid := (lo + hi) / 2
	collapsed := !isFinite(lo) || !isFinite(hi) || hi-lo <= math.Abs(mid)*1e-9
	if v.scaleMode == domain.ScaleLog && lo <= 0 {
		collapsed = true
	}
	if collapsed {
		v.minPrice, v.maxPrice = v.fallbackRange(window)
		return
	}

	if v.scaleMode == domain.ScaleLog {
		v.minPrice = lo / v.cfg.LogPadFactor
		v.maxPrice = hi * v.cfg.LogPadFactor
		return
	}
	pad := (hi - lo) * v.cfg.LinearPadFrac
	if floor := math.Abs(mid) * v.cfg.LinearPadFloorFrac; pad < floor {
		pad = floor
	}
	v.minPrice = lo - pad
	v.maxPrice = hi + pad
}

// fallbackRange builds a band around the last usable close when the
// window cannot produce a real span.
func (v *Viewport) fallbackRange(window []domain.Bar) (float64, float64) {
	c := 0.0
	for i := len(window) - 1; i >= 0; i-- {
		if isFinite(window[i].Close) && (v.scaleMode != domain.ScaleLog || window[i].Close > 0) {
			c = window[i].Close
			break
		}
	}
	if c == 0 {
		if v.scaleMode == domain.ScaleLog {
			// Nothing positive anywhere; any positive band renders an
			// empty but valid axis.
			return 0.9, 1.1
		}
		return -1, 1
	}
	lo := c * (1 - v.cfg.FallbackPadFrac)
	hi := c * (1 + v.cfg.FallbackPadFrac)
	if lo > hi {
		lo, hi = hi, lo
	}
	if v.scaleMode == domain.ScaleLog && lo <= 0 {
		lo = c * v.cfg.FallbackPadFrac
	}
	return lo, hi
}
