package chart

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"candleView/internal/ports"
)

const (
	defaultMaxPriceLabels = 8
	defaultMaxTimeLabels  = 6
	defaultBodyFraction   = 0.7
	noDataNotice          = "no data loaded"
)

// RendererConfig holds the renderer's dependencies and label density
// targets.
type RendererConfig struct {
	Sink   Sink
	Logger ports.Logger

	MaxPriceLabels int
	MaxTimeLabels  int
	// BodyFraction is the share of a bar's column taken by the candle
	// body, in (0,1].
	BodyFraction float64
}

// Renderer builds a Scene from a snapshot and hands it to the sink in one
// batch. It holds no chart state of its own; every pass rebuilds the full
// tree from the snapshot so the cost stays proportional to the visible
// window, never the loaded history.
type Renderer struct {
	sink           Sink
	logger         ports.Logger
	maxPriceLabels int
	maxTimeLabels  int
	bodyFraction   float64
}

// NewRenderer creates a renderer. Sink and Logger are required.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required for Renderer")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Renderer")
	}
	if cfg.MaxPriceLabels <= 0 {
		cfg.MaxPriceLabels = defaultMaxPriceLabels
	}
	if cfg.MaxTimeLabels <= 0 {
		cfg.MaxTimeLabels = defaultMaxTimeLabels
	}
	if cfg.BodyFraction <= 0 || cfg.BodyFraction > 1 {
		cfg.BodyFraction = defaultBodyFraction
	}
	return &Renderer{
		sink:           cfg.Sink,
		logger:         cfg.Logger,
		maxPriceLabels: cfg.MaxPriceLabels,
		maxTimeLabels:  cfg.MaxTimeLabels,
		bodyFraction:   cfg.BodyFraction,
	}, nil
}

// Render builds the visual tree for the snapshot at the given pixel
// dimensions and swaps it into the sink. A snapshot that violates the
// price-range preconditions aborts the whole pass with an error and
// leaves the sink untouched; per-element problems are skipped instead.
func (r *Renderer) Render(ctx context.Context, snap Snapshot, width, height float64) error {
	op := "Renderer.Render"
	if width <= 0 || height <= 0 || !isFinite(width) || !isFinite(height) {
		return fmt.Errorf("%s: dimensions %vx%v: %w", op, width, height, ports.ErrInvalidRequest)
	}

	scene := &Scene{Width: width, Height: height}
	if !snap.HasData() {
		scene.Notice = noDataNotice
		r.sink.SetScene(scene)
		return nil
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t := NewTransform(snap)
	r.buildPriceGrid(ctx, scene, t, snap)
	r.buildTimeGrid(ctx, scene, t, snap)
	r.buildCandles(scene, t, snap)
	r.buildMarker(scene, t, snap)

	r.sink.SetScene(scene)
	return nil
}

// buildPriceGrid emits horizontal rules and right-edge labels. Label
// values come off the plain price span even in log mode so they stay
// round; positions go through the active transform.
func (r *Renderer) buildPriceGrid(ctx context.Context, scene *Scene, t Transform, snap Snapshot) {
	ticks, err := PriceTicks(snap.MinPrice, snap.MaxPrice, r.maxPriceLabels)
	if err != nil {
		// Validate passed, so this only fires on pathological spans;
		// the pass continues without a price grid.
		r.logger.Warn(ctx, "price grid skipped", map[string]interface{}{"error": err.Error()})
		return
	}
	step, _ := NiceStep(snap.MaxPrice-snap.MinPrice, r.maxPriceLabels)
	decimals := StepDecimals(step)
	for _, price := range ticks {
		y, ok := t.PriceToY(price, scene.Height)
		if !ok {
			continue
		}
		scene.Grid = append(scene.Grid, GridLine{Axis: GridHorizontal, X1: 0, Y1: y, X2: scene.Width, Y2: y})
		scene.Labels = append(scene.Labels, Label{
			Side: SideRight,
			X:    scene.Width,
			Y:    y,
			Text: strconv.FormatFloat(price, 'f', decimals, 64),
		})
	}
}

// buildTimeGrid emits vertical rules and bottom labels on a calendar
// stride. Only timestamps landing exactly on a visible bar get a rule,
// which keeps the grid honest about where buckets actually are.
func (r *Renderer) buildTimeGrid(_ context.Context, scene *Scene, t Transform, snap Snapshot) {
	window := snap.VisibleBars()
	if len(window) == 0 {
		return
	}
	first := window[0].Timestamp
	last := window[len(window)-1].Timestamp
	stride := TimeStep(last-first+int64(snap.Granularity), r.maxTimeLabels)
	gran := int64(snap.Granularity)

	prevDay := time.Unix(first, 0).UTC().YearDay()
	for _, ts := range TimeTicks(first, last, stride) {
		if (ts-first)%gran != 0 {
			continue
		}
		idx := snap.VisibleStart + int((ts-first)/gran)
		x := t.IndexToX(idx, scene.Width)
		tm := time.Unix(ts, 0).UTC()
		dayChanged := tm.YearDay() != prevDay
		prevDay = tm.YearDay()
		scene.Grid = append(scene.Grid, GridLine{Axis: GridVertical, X1: x, Y1: 0, X2: x, Y2: scene.Height})
		scene.Labels = append(scene.Labels, Label{
			Side: SideBottom,
			X:    x,
			Y:    scene.Height,
			Text: formatTimeLabel(tm, stride, dayChanged, snap.TimeFormat12h),
		})
	}
}

// buildCandles emits one Candle per visible bar. A bar with any
// undrawable price is skipped whole; a partial shape is worse than a gap.
func (r *Renderer) buildCandles(scene *Scene, t Transform, snap Snapshot) {
	bodyWidth := t.SlotWidth(scene.Width) * r.bodyFraction
	for i := snap.VisibleStart; i < snap.VisibleEnd; i++ {
		bar := snap.Bars[i]
		yOpen, ok1 := t.PriceToY(bar.Open, scene.Height)
		yClose, ok2 := t.PriceToY(bar.Close, scene.Height)
		yHigh, ok3 := t.PriceToY(bar.High, scene.Height)
		yLow, ok4 := t.PriceToY(bar.Low, scene.Height)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		scene.Candles = append(scene.Candles, Candle{
			X:         t.IndexToX(i, scene.Width),
			BodyWidth: bodyWidth,
			YOpen:     yOpen,
			YClose:    yClose,
			YHigh:     yHigh,
			YLow:      yLow,
			Bullish:   bar.Bullish(),
		})
	}
}

// buildMarker emits the live-price line. The streamed tick wins; with a
// quiet feed the trailing close stands in; a downed feed or an
// undrawable price hides the marker.
func (r *Renderer) buildMarker(scene *Scene, t Transform, snap Snapshot) {
	if !snap.LiveVisible {
		return
	}
	price := snap.LiveTick
	if !snap.LiveSet {
		price = snap.Bars[len(snap.Bars)-1].Close
	}
	if !isFinite(price) || price <= 0 {
		return
	}
	y, ok := t.PriceToY(price, scene.Height)
	if !ok {
		return
	}
	step, err := NiceStep(snap.MaxPrice-snap.MinPrice, r.maxPriceLabels)
	decimals := 2
	if err == nil {
		decimals = StepDecimals(step)
	}
	scene.Marker = &PriceMarker{Y: y, Text: strconv.FormatFloat(price, 'f', decimals, 64)}
}

// formatTimeLabel renders one X-axis timestamp. Sub-day strides show the
// clock, switching to the date when the label crosses into a new day;
// day-and-up strides always show the date.
func formatTimeLabel(tm time.Time, stride int64, dayChanged, twelveHour bool) string {
	if stride >= 86400 || dayChanged {
		if stride >= 180*86400 {
			return tm.Format("Jan 2006")
		}
		return tm.Format("Jan 2")
	}
	if twelveHour {
		return tm.Format("3:04PM")
	}
	return tm.Format("15:04")
}
