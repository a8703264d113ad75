package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"candleView/config"
	"candleView/internal/chart"
	"candleView/internal/domain"
	"candleView/internal/ports"
)

const (
	// streamShutdownTimeout bounds how long teardown waits for the ticker
	// stream to confirm it has closed.
	streamShutdownTimeout = 5 * time.Second
)

// ChartService orchestrates the chart: it owns the viewport, serializes
// every mutation and render pass behind one mutex, and wires the history
// provider, the live ticker stream, and the preference store together.
// Handlers run to completion under the lock, so ticks apply strictly in
// arrival order and renders never observe a half-applied mutation.
type ChartService struct {
	cfg      *config.Config
	logger   ports.Logger
	history  ports.HistoryProvider
	feed     ports.TickStream
	prefs    ports.PreferenceStore
	renderer *chart.Renderer

	redrawInterval time.Duration

	// State fields
	mu         sync.Mutex // Protects access to state fields below
	viewport   *chart.Viewport
	width      int
	height     int
	symbol     string // history venue symbol, e.g. ETHUSDT
	product    string // feed product id, e.g. ETH-USD
	feedState  domain.FeedState
	feedErr    error
	lastPrices map[string]float64 // latest streamed price per product
	fetchSeq   uint64             // stale-response guard for history fetches
	fetchErr   error
	fetching   bool
	renderErr  error
	lastDraw   time.Time
	pending    *time.Timer // single deferred repaint slot
	pendingSet bool
	streamDone chan struct{}
	streamStop chan struct{}

	fetchCancel context.CancelFunc
	runCtx      context.Context
	runCancel   context.CancelFunc
	started     bool
}

// NewChartService creates a new application service instance.
func NewChartService(
	cfg *config.Config,
	logger ports.Logger,
	history ports.HistoryProvider,
	feed ports.TickStream,
	prefs ports.PreferenceStore,
	renderer *chart.Renderer,
) (*ChartService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || history == nil || feed == nil || prefs == nil || renderer == nil {
		return nil, fmt.Errorf("missing required dependencies for ChartService")
	}

	// Validate config values needed by service
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("configuration HistoryLimit must be positive")
	}
	if cfg.RedrawMinInterval <= 0 {
		return nil, fmt.Errorf("configuration RedrawMinInterval must be positive")
	}
	if cfg.ChartWidth <= 0 || cfg.ChartHeight <= 0 {
		return nil, fmt.Errorf("configuration chart dimensions must be positive")
	}

	viewport := chart.NewViewport(chart.Config{
		Granularity:    cfg.Granularity,
		DefaultWindow:  cfg.DefaultWindowBars,
		MinVisibleBars: cfg.MinVisibleBars,
	})

	return &ChartService{
		cfg:            cfg,
		logger:         logger,
		history:        history,
		feed:           feed,
		prefs:          prefs,
		renderer:       renderer,
		redrawInterval: cfg.RedrawMinInterval,
		viewport:       viewport,
		width:          cfg.ChartWidth,
		height:         cfg.ChartHeight,
		symbol:         cfg.Symbol,
		product:        cfg.ProductID,
		feedState:      domain.FeedDisconnected,
		lastPrices:     make(map[string]float64),
	}, nil
}

// Start brings the chart up: restore preferences, request the initial
// history seed, open the live stream and paint the first frame. It does
// not block; the host drives the lifetime and calls Stop on exit.
func (s *ChartService) Start(ctx context.Context) error {
	op := "Start"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%s: service already started", op)
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.started = true

	s.logger.Info(ctx, "Starting chart service", map[string]interface{}{
		"symbol":      s.symbol,
		"product":     s.product,
		"granularity": s.viewport.Granularity().String(),
	})

	// 1. Restore persisted preferences. Absent values mean defaults and a
	// read failure is not fatal; the chart starts with linear/24h.
	prefs, err := s.prefs.Load(s.runCtx)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load preferences, using defaults", map[string]interface{}{"error": err.Error()})
	} else {
		if prefs.LogScale {
			s.viewport.SetScaleMode(domain.ScaleLog)
		}
		s.viewport.SetTimeFormat12h(prefs.TimeFormat12h)
		s.logger.Info(ctx, "Preferences restored", map[string]interface{}{
			"logScale":      prefs.LogScale,
			"timeFormat12h": prefs.TimeFormat12h,
		})
	}

	// 2. Kick off the initial history fetch. It completes asynchronously;
	// until it lands the renderer shows the no-data notice.
	s.refetchLocked("initial seed")

	// 3. Open the live ticker stream.
	if err := s.startStreamLocked(); err != nil {
		s.started = false
		s.fetchCancel()
		s.runCancel()
		s.logger.Error(ctx, err, "Failed to start ticker stream")
		return fmt.Errorf("%s: failed to start ticker stream: %w", op, err)
	}

	// 4. First paint.
	s.paintNowLocked()
	return nil
}

// Stop tears the chart down: cancel any in-flight fetch, close the stream
// without a reconnect, and stop the deferred repaint timer.
func (s *ChartService) Stop() {
	ctx := context.Background()
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	if s.pendingSet {
		s.pendingSet = false
		s.pending.Stop()
	}
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	stop, done := s.streamStop, s.streamDone
	s.streamStop, s.streamDone = nil, nil
	cancel := s.runCancel
	s.mu.Unlock()

	s.shutdownStream(ctx, stop, done)
	cancel()
	s.logger.Info(ctx, "Chart service stopped")
}

// Resize records the new frame size and repaints. Before Start it only
// records the size.
func (s *ChartService) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width <= 0 || height <= 0 {
		return
	}
	s.width, s.height = width, height
	if s.started {
		s.paintNowLocked()
	}
}

// Pan shifts the visible window by deltaBars (negative pans left into
// history). The viewport clamps at the series edges.
func (s *ChartService) Pan(deltaBars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.viewport.Snapshot()
	if !snap.HasData() || deltaBars == 0 {
		return
	}
	if err := s.viewport.SetVisibleRange(snap.VisibleStart+deltaBars, snap.VisibleEnd+deltaBars); err != nil {
		s.logger.Debug(context.Background(), "Pan rejected", map[string]interface{}{"error": err.Error()})
		return
	}
	s.paintNowLocked()
}

// Zoom narrows (in) or widens (out) the visible window, keeping the right
// edge anchored so the most recent candle stays in place.
func (s *ChartService) Zoom(in bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.viewport.Snapshot()
	if !snap.HasData() {
		return
	}
	count := snap.VisibleEnd - snap.VisibleStart
	var next int
	if in {
		next = count * 4 / 5
	} else {
		next = count*5/4 + 1
	}
	if err := s.viewport.SetVisibleRange(snap.VisibleEnd-next, snap.VisibleEnd); err != nil {
		s.logger.Debug(context.Background(), "Zoom rejected", map[string]interface{}{"error": err.Error()})
		return
	}
	s.paintNowLocked()
}

// ToggleScaleMode flips the price axis between linear and logarithmic and
// persists the choice. A write failure is logged, never fatal.
func (s *ChartService) ToggleScaleMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := domain.ScaleLog
	if s.viewport.ScaleMode() == domain.ScaleLog {
		mode = domain.ScaleLinear
	}
	s.viewport.SetScaleMode(mode)
	if err := s.prefs.SaveLogScale(s.runCtx, mode == domain.ScaleLog); err != nil {
		s.logger.Warn(s.runCtx, "Failed to persist scale mode", map[string]interface{}{"error": err.Error()})
	}
	s.logger.Info(s.runCtx, "Scale mode toggled", map[string]interface{}{"mode": string(mode)})
	s.paintNowLocked()
}

// ToggleTimeFormat flips the time-axis labels between 24h and 12h and
// persists the choice.
func (s *ChartService) ToggleTimeFormat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	on := !s.viewport.TimeFormat12h()
	s.viewport.SetTimeFormat12h(on)
	if err := s.prefs.SaveTimeFormat12h(s.runCtx, on); err != nil {
		s.logger.Warn(s.runCtx, "Failed to persist time format", map[string]interface{}{"error": err.Error()})
	}
	s.paintNowLocked()
}

// CycleGranularity advances to the next supported bucket width and reseeds.
func (s *ChartService) CycleGranularity() {
	s.SwitchGranularity(s.viewport.Granularity().Next())
}

// SwitchGranularity reseeds the chart under a new bucket width. The old
// series is dropped immediately; any in-flight fetch response for the old
// width is discarded by the sequence guard.
func (s *ChartService) SwitchGranularity(g domain.Granularity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || g <= 0 || g == s.viewport.Granularity() {
		return
	}
	s.viewport.SetGranularity(g)
	s.viewport.Seed(nil)
	s.refetchLocked("granularity switch")
	s.paintNowLocked()
}

// SwitchInstrument swaps both the history symbol and the feed product:
// clear the series, reseed from history, tear down the old subscription
// and open a new one. Ticks from the old product arriving during the
// switch only touch the latest-price map.
func (s *ChartService) SwitchInstrument(symbol, productID string) error {
	op := "SwitchInstrument"
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("%s: service not started", op)
	}
	if symbol == s.symbol && productID == s.product {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info(s.runCtx, "Switching instrument", map[string]interface{}{
		"fromSymbol": s.symbol, "toSymbol": symbol,
		"fromProduct": s.product, "toProduct": productID,
	})
	s.symbol = symbol
	s.product = productID
	s.viewport.Seed(nil)
	s.refetchLocked("instrument switch")
	stop, done := s.streamStop, s.streamDone
	s.streamStop, s.streamDone = nil, nil
	s.paintNowLocked()
	s.mu.Unlock()

	// The feed allows one active stream at a time, so wait for the old
	// one to confirm shutdown before subscribing to the new product.
	s.shutdownStream(context.Background(), stop, done)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	if err := s.startStreamLocked(); err != nil {
		s.logger.Error(s.runCtx, err, "Failed to resubscribe after instrument switch")
		return fmt.Errorf("%s: failed to resubscribe: %w", op, err)
	}
	return nil
}

// RetryFetch re-issues the history fetch after a failure. Fetch errors
// never auto-retry; this is the explicit user action behind them.
func (s *ChartService) RetryFetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.fetching {
		return
	}
	s.refetchLocked("manual retry")
	s.paintNowLocked()
}

// AppendBar is the external new-bucket hook: whoever owns bucket rollover
// (a close event from the venue, a scheduler) appends through here. Ticks
// never create bars.
func (s *ChartService) AppendBar(bar domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.viewport.AppendBar(bar); err != nil {
		return err
	}
	s.requestRepaintLocked()
	return nil
}

// LatestPrice returns the most recent streamed price for any product seen
// on the feed, not just the charted one.
func (s *ChartService) LatestPrice(product string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.lastPrices[product]
	return price, ok
}

// Status reports the connectivity and data state the host renders in its
// footer.
func (s *ChartService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.viewport.Snapshot()
	price, hasPrice := s.lastPrices[s.product]
	return Status{
		Symbol:        s.symbol,
		Product:       s.product,
		Granularity:   snap.Granularity,
		ScaleMode:     snap.ScaleMode,
		TimeFormat12h: snap.TimeFormat12h,
		FeedState:     s.feedState,
		FeedErr:       s.feedErr,
		Fetching:      s.fetching,
		FetchErr:      s.fetchErr,
		RenderErr:     s.renderErr,
		LastPrice:     price,
		HasPrice:      hasPrice,
		Bars:          len(snap.Bars),
		VisibleStart:  snap.VisibleStart,
		VisibleEnd:    snap.VisibleEnd,
	}
}

// handleTick processes every decoded ticker message from the stream.
// It runs on the stream's read goroutine.
func (s *ChartService) handleTick(tick domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.lastPrices[tick.Product] = tick.Price
	if tick.Product != s.product {
		return
	}
	s.viewport.PatchTailBar(tick.Price, tick.Time.Unix())
	s.requestRepaintLocked()
}

// handleFeedState reacts to stream lifecycle transitions: the live marker
// is only shown while subscribed, and state changes repaint immediately so
// the footer stays truthful.
func (s *ChartService) handleFeedState(state domain.FeedState, cause error) {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.feedState = state
	s.feedErr = cause
	s.viewport.SetLiveVisible(state == domain.FeedSubscribed)
	if cause != nil {
		s.logger.Warn(ctx, "Feed state changed", map[string]interface{}{"state": string(state), "cause": cause.Error()})
	} else {
		s.logger.Info(ctx, "Feed state changed", map[string]interface{}{"state": string(state)})
	}
	s.paintNowLocked()
}

// refetchLocked starts an asynchronous history fetch for the current
// symbol and granularity. Bumping the sequence first means any response
// still in flight applies to a dead sequence number and is dropped.
// Caller must hold s.mu.
func (s *ChartService) refetchLocked(reason string) {
	s.fetchSeq++
	seq := s.fetchSeq
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	fctx, cancel := context.WithCancel(s.runCtx)
	s.fetchCancel = cancel
	s.fetching = true
	s.fetchErr = nil

	symbol := s.symbol
	granularity := s.viewport.Granularity()
	limit := s.cfg.HistoryLimit
	s.logger.Info(fctx, "Requesting historical bars", map[string]interface{}{
		"reason":      reason,
		"symbol":      symbol,
		"granularity": granularity.String(),
		"limit":       limit,
		"seq":         seq,
	})

	go func() {
		bars, err := s.history.FetchBars(fctx, symbol, granularity, limit)
		ctx := context.Background()

		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.fetchSeq || !s.started {
			s.logger.Debug(ctx, "Discarding stale history response", map[string]interface{}{
				"seq": seq, "current": s.fetchSeq, "reason": ports.ErrStaleResponse.Error(),
			})
			return
		}
		s.fetching = false
		if err != nil {
			s.fetchErr = err
			s.logger.Error(ctx, err, "History fetch failed", map[string]interface{}{"symbol": symbol, "seq": seq})
			s.paintNowLocked()
			return
		}
		domain.SortBarsAscending(bars)
		s.viewport.Seed(bars)
		s.logger.Info(ctx, "Seeded chart from history", map[string]interface{}{"symbol": symbol, "bars": len(bars), "seq": seq})
		s.paintNowLocked()
	}()
}

// startStreamLocked opens the ticker subscription for the active product.
// Caller must hold s.mu.
func (s *ChartService) startStreamLocked() error {
	doneCh, stopCh, err := s.feed.Stream(s.runCtx, []string{s.product}, s.handleTick, s.handleFeedState)
	if err != nil {
		return err
	}
	s.streamDone, s.streamStop = doneCh, stopCh
	s.logger.Info(s.runCtx, "Ticker stream started", map[string]interface{}{"product": s.product})
	return nil
}

// shutdownStream requests a user-initiated stream teardown and waits,
// bounded, for confirmation. Must be called without holding s.mu: the
// stream's state handler re-enters the service during teardown.
func (s *ChartService) shutdownStream(ctx context.Context, stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
		s.logger.Info(ctx, "Ticker stream shut down gracefully")
	case <-time.After(streamShutdownTimeout):
		s.logger.Warn(ctx, "Timeout waiting for ticker stream to shut down")
	}
}

// requestRepaintLocked paints immediately when outside the redraw
// interval; otherwise it arms at most one deferred repaint. Ticks landing
// while the slot is armed mutate state only and are covered by the
// deferred paint. Caller must hold s.mu.
func (s *ChartService) requestRepaintLocked() {
	since := time.Since(s.lastDraw)
	if since >= s.redrawInterval {
		s.paintLocked()
		return
	}
	if s.pendingSet {
		return
	}
	s.pendingSet = true
	s.pending = time.AfterFunc(s.redrawInterval-since, s.flushPendingRepaint)
}

func (s *ChartService) flushPendingRepaint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pendingSet || !s.started {
		return
	}
	s.pendingSet = false
	s.paintLocked()
}

// paintNowLocked renders immediately, absorbing any deferred slot since
// the fresh frame already covers it. Caller must hold s.mu.
func (s *ChartService) paintNowLocked() {
	if s.pendingSet {
		s.pendingSet = false
		s.pending.Stop()
	}
	s.paintLocked()
}

// paintLocked runs one render pass. A render error means the pass was
// aborted with the previous frame left on screen; it is surfaced through
// Status rather than failing the caller. Caller must hold s.mu.
func (s *ChartService) paintLocked() {
	snap := s.viewport.Snapshot()
	err := s.renderer.Render(s.runCtx, snap, float64(s.width), float64(s.height))
	s.renderErr = err
	if err != nil {
		s.logger.Warn(s.runCtx, "Render pass aborted", map[string]interface{}{"error": err.Error()})
	}
	s.lastDraw = time.Now()
}
