package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candleView/internal/domain"
	"candleView/internal/ports"
)

type testLogger struct{}

func (testLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (testLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (testLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (testLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stateEvent struct {
	state domain.FeedState
	cause error
	at    time.Time
}

// feedRecorder collects handler callbacks; they arrive on the stream's
// read goroutine, so every access is locked.
type feedRecorder struct {
	mu     sync.Mutex
	events []stateEvent
	ticks  []domain.Tick
}

func (r *feedRecorder) onTick(tick domain.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tick)
}

func (r *feedRecorder) onState(state domain.FeedState, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stateEvent{state: state, cause: cause, at: time.Now()})
}

func (r *feedRecorder) states() []domain.FeedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FeedState, len(r.events))
	for i, e := range r.events {
		out[i] = e.state
	}
	return out
}

func (r *feedRecorder) snapshotEvents() []stateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stateEvent(nil), r.events...)
}

func (r *feedRecorder) snapshotTicks() []domain.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Tick(nil), r.ticks...)
}

func (r *feedRecorder) countState(want domain.FeedState) int {
	n := 0
	for _, s := range r.states() {
		if s == want {
			n++
		}
	}
	return n
}

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestFeed(t *testing.T, url string, reconnect time.Duration) *Feed {
	t.Helper()
	f, err := New(Config{URL: url, Logger: testLogger{}, ReconnectDelay: reconnect})
	require.NoError(t, err)
	return f
}

func waitClosed(t *testing.T, ch chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal(msg)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{URL: "ws://example.test"})
	assert.Error(t, err, "logger is required")

	_, err = New(Config{Logger: testLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	f, err := New(Config{URL: "ws://example.test", Logger: testLogger{}})
	require.NoError(t, err)
	assert.Equal(t, defaultChannel, f.cfg.Channel)
	assert.Equal(t, defaultReconnectDelay, f.cfg.ReconnectDelay)
}

func TestFeed_Stream_RejectsBadArguments(t *testing.T) {
	f := newTestFeed(t, "ws://example.test", time.Second)
	rec := &feedRecorder{}

	_, _, err := f.Stream(context.Background(), nil, rec.onTick, rec.onState)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, _, err = f.Stream(context.Background(), []string{"ETH-USD"}, nil, rec.onState)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, _, err = f.Stream(context.Background(), []string{"ETH-USD"}, rec.onTick, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestFeed_Stream_SubscribeAndTicks(t *testing.T) {
	subCh := make(chan subscribeRequest, 1)
	var unsubs atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subCh <- sub

		_ = conn.WriteJSON(map[string]string{"type": "subscriptions"})
		_ = conn.WriteJSON(map[string]string{
			"type": "ticker", "product_id": "ETH-USD", "price": "100.5", "time": "2023-11-15T00:00:01Z",
		})
		_ = conn.WriteJSON(map[string]string{
			"type": "ticker", "product_id": "ETH-USD", "price": "101",
		})

		// Hold the connection open, recording teardown frames.
		for {
			var req subscribeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Type == "unsubscribe" {
				unsubs.Add(1)
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(t, wsURL(srv), time.Second)
	rec := &feedRecorder{}
	done, stop, err := f.Stream(context.Background(), []string{"ETH-USD"}, rec.onTick, rec.onState)
	require.NoError(t, err)

	var sub subscribeRequest
	select {
	case sub = <-subCh:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the subscribe request")
	}
	assert.Equal(t, "subscribe", sub.Type)
	assert.Equal(t, []string{"ETH-USD"}, sub.ProductIDs)
	assert.Equal(t, []string{"ticker"}, sub.Channels)

	require.Eventually(t, func() bool { return len(rec.snapshotTicks()) == 2 },
		3*time.Second, 10*time.Millisecond)

	ticks := rec.snapshotTicks()
	assert.Equal(t, "ETH-USD", ticks[0].Product)
	assert.Equal(t, 100.5, ticks[0].Price)
	assert.Equal(t, time.Date(2023, time.November, 15, 0, 0, 1, 0, time.UTC), ticks[0].Time)
	assert.Equal(t, 101.0, ticks[1].Price)
	assert.WithinDuration(t, time.Now(), ticks[1].Time, 5*time.Second,
		"a ticker without a time field stamps the arrival")

	assert.Equal(t, []domain.FeedState{domain.FeedConnecting, domain.FeedSubscribed}, rec.states())

	close(stop)
	waitClosed(t, done, "stream did not shut down after stop")

	events := rec.snapshotEvents()
	final := events[len(events)-1]
	assert.Equal(t, domain.FeedDisconnected, final.state)
	assert.NoError(t, final.cause, "a user stop is not an error")
	assert.Eventually(t, func() bool { return unsubs.Load() == 1 },
		time.Second, 10*time.Millisecond, "teardown sends one unsubscribe")
}

func TestFeed_Stream_TickerBeforeAckMeansSubscribed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]string{"type": "ticker", "product_id": "BTC-USD", "price": "42000"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(t, wsURL(srv), time.Second)
	rec := &feedRecorder{}
	done, stop, err := f.Stream(context.Background(), []string{"BTC-USD"}, rec.onTick, rec.onState)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshotTicks()) == 1 },
		3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.FeedState{domain.FeedConnecting, domain.FeedSubscribed}, rec.states())

	close(stop)
	waitClosed(t, done, "stream did not shut down after stop")
}

func TestFeed_Stream_ReconnectsOnceAfterUnexpectedClose(t *testing.T) {
	const reconnectDelay = 50 * time.Millisecond
	var dials atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]string{"type": "subscriptions"})
		if n == 1 {
			return // abrupt close, the client must schedule a reconnect
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(t, wsURL(srv), reconnectDelay)
	rec := &feedRecorder{}
	done, stop, err := f.Stream(context.Background(), []string{"ETH-USD"}, rec.onTick, rec.onState)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.countState(domain.FeedSubscribed) == 2 },
		3*time.Second, 10*time.Millisecond, "the stream must resubscribe after the drop")
	assert.Equal(t, int32(2), dials.Load())

	events := rec.snapshotEvents()
	require.Equal(t, []domain.FeedState{
		domain.FeedConnecting, domain.FeedSubscribed,
		domain.FeedDisconnected,
		domain.FeedConnecting, domain.FeedSubscribed,
	}, rec.states())

	assert.ErrorIs(t, events[2].cause, ports.ErrStreamClosed)
	gap := events[3].at.Sub(events[2].at)
	assert.GreaterOrEqual(t, gap, reconnectDelay-10*time.Millisecond,
		"the reconnect waits out the fixed delay")

	// A healthy second connection schedules nothing further.
	time.Sleep(3 * reconnectDelay)
	assert.Equal(t, int32(2), dials.Load())

	close(stop)
	waitClosed(t, done, "stream did not shut down after stop")
}

func TestFeed_Stream_ErrorFrameRejectsSubscription(t *testing.T) {
	var dials atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if n == 1 {
			_ = conn.WriteJSON(map[string]string{
				"type": "error", "message": "Failed to subscribe", "reason": "product not found",
			})
			return
		}
		_ = conn.WriteJSON(map[string]string{"type": "subscriptions"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(t, wsURL(srv), 50*time.Millisecond)
	rec := &feedRecorder{}
	done, stop, err := f.Stream(context.Background(), []string{"NOPE-USD"}, rec.onTick, rec.onState)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.countState(domain.FeedDisconnected) >= 1 },
		3*time.Second, 10*time.Millisecond)

	events := rec.snapshotEvents()
	var cause error
	for _, e := range events {
		if e.state == domain.FeedDisconnected && e.cause != nil {
			cause = e.cause
			break
		}
	}
	assert.ErrorIs(t, cause, ports.ErrSubscribeRejected)

	// The rejection still schedules the one reconnect.
	require.Eventually(t, func() bool { return rec.countState(domain.FeedSubscribed) == 1 },
		3*time.Second, 10*time.Millisecond)

	close(stop)
	waitClosed(t, done, "stream did not shut down after stop")
}

func TestFeed_Stream_UserStopSkipsReconnect(t *testing.T) {
	var dials atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]string{"type": "subscriptions"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(t, wsURL(srv), 50*time.Millisecond)
	rec := &feedRecorder{}
	done, stop, err := f.Stream(context.Background(), []string{"ETH-USD"}, rec.onTick, rec.onState)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.countState(domain.FeedSubscribed) == 1 },
		3*time.Second, 10*time.Millisecond)

	close(stop)
	waitClosed(t, done, "stream did not shut down after stop")

	// Give a would-be reconnect several delays to show up; it must not.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load(), "a user stop never reconnects")
	assert.Equal(t, 1, rec.countState(domain.FeedConnecting))
}

func TestFeed_Stream_SingleActiveSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]string{"type": "subscriptions"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(t, wsURL(srv), time.Second)
	rec := &feedRecorder{}
	done, stop, err := f.Stream(context.Background(), []string{"ETH-USD"}, rec.onTick, rec.onState)
	require.NoError(t, err)

	_, _, err = f.Stream(context.Background(), []string{"BTC-USD"}, rec.onTick, rec.onState)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest, "one stream per feed at a time")

	close(stop)
	waitClosed(t, done, "stream did not shut down after stop")

	// After teardown the slot frees up.
	rec2 := &feedRecorder{}
	done2, stop2, err := f.Stream(context.Background(), []string{"BTC-USD"}, rec2.onTick, rec2.onState)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec2.countState(domain.FeedSubscribed) == 1 },
		3*time.Second, 10*time.Millisecond)

	close(stop2)
	waitClosed(t, done2, "second stream did not shut down after stop")
}

func TestTranslateTicker(t *testing.T) {
	tests := []struct {
		name    string
		env     envelope
		want    domain.Tick
		wantErr bool
	}{
		{
			name: "full frame",
			env:  envelope{Type: "ticker", ProductID: "ETH-USD", Price: "1999.99", Time: "2023-11-15T06:00:00Z"},
			want: domain.Tick{Product: "ETH-USD", Price: 1999.99, Time: time.Date(2023, time.November, 15, 6, 0, 0, 0, time.UTC)},
		},
		{
			name:    "missing product",
			env:     envelope{Type: "ticker", Price: "1999.99"},
			wantErr: true,
		},
		{
			name:    "unparseable price",
			env:     envelope{Type: "ticker", ProductID: "ETH-USD", Price: "n/a"},
			wantErr: true,
		},
		{
			name:    "unparseable time",
			env:     envelope{Type: "ticker", ProductID: "ETH-USD", Price: "1", Time: "yesterday"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translateTicker(tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing time stamps arrival", func(t *testing.T) {
		got, err := translateTicker(envelope{Type: "ticker", ProductID: "ETH-USD", Price: "2"})
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), got.Time, 5*time.Second)
	})
}
