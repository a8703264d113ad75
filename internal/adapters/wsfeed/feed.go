// Package wsfeed implements the live ticker stream over a websocket
// market-data feed: connect, subscribe, decode, reconnect after a fixed
// delay, teardown. Inbound messages are JSON objects tagged by "type";
// only "ticker" carries prices.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"candleView/internal/domain"
	"candleView/internal/ports"
)

const (
	defaultChannel          = "ticker"
	defaultReconnectDelay   = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 20 * time.Second
)

// Config holds the feed adapter's settings.
type Config struct {
	URL     string // websocket endpoint, ws:// or wss://
	Channel string // subscription channel name, defaults to "ticker"
	Logger  ports.Logger

	// ReconnectDelay is the fixed wait between an unexpected close and
	// the single reconnect attempt scheduled for it.
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
}

// Feed implements ports.TickStream against a websocket feed.
type Feed struct {
	cfg    Config
	logger ports.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex
	active bool
}

// New creates the feed adapter.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for websocket feed")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed URL is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Feed{
		cfg:    cfg,
		logger: cfg.Logger,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}, nil
}

// subscribeRequest is the outbound subscribe/unsubscribe frame.
type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// envelope is the inbound frame; Type routes it, the remaining fields are
// populated only for the types that carry them.
type envelope struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id,omitempty"`
	Price     string `json:"price,omitempty"`
	Time      string `json:"time,omitempty"`
	Message   string `json:"message,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Stream opens the connection and keeps the subscription alive until a
// user-initiated stop. Every unexpected closure schedules exactly one
// reconnect after the fixed delay; a stop via stopCh or ctx ends the
// stream without one. doneCh closes when the stream has fully shut down.
func (f *Feed) Stream(ctx context.Context, products []string, onTick ports.TickHandler, onState ports.StateHandler) (chan struct{}, chan struct{}, error) {
	op := "Feed.Stream"
	if len(products) == 0 {
		return nil, nil, fmt.Errorf("%s: no products: %w", op, ports.ErrInvalidRequest)
	}
	if onTick == nil || onState == nil {
		return nil, nil, fmt.Errorf("%s: handlers are required: %w", op, ports.ErrInvalidRequest)
	}

	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return nil, nil, fmt.Errorf("%s: a subscription is already active: %w", op, ports.ErrInvalidRequest)
	}
	f.active = true
	f.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			f.logger.Info(ctx, op+": stop requested, closing stream", map[string]interface{}{"products": products})
			cancel()
		case <-runCtx.Done():
		}
	}()

	go func() {
		defer func() {
			cancel()
			f.mu.Lock()
			f.active = false
			f.mu.Unlock()
			close(doneCh)
		}()

		policy := backoff.WithContext(backoff.NewConstantBackOff(f.cfg.ReconnectDelay), runCtx)
		err := backoff.RetryNotify(func() error {
			return f.runOnce(runCtx, products, onTick, onState)
		}, policy, func(err error, wait time.Duration) {
			f.logger.Warn(runCtx, op+": connection lost, reconnect scheduled", map[string]interface{}{
				"error": err.Error(),
				"wait":  wait.String(),
			})
		})
		if err != nil && runCtx.Err() == nil {
			f.logger.Error(runCtx, err, op+": stream ended with error")
		}
	}()

	return doneCh, stopCh, nil
}

// runOnce performs one full connection lifecycle: dial, subscribe, read
// until closure. A nil return means the stream ended on purpose; any
// error asks the retry policy for the one scheduled reconnect.
func (f *Feed) runOnce(ctx context.Context, products []string, onTick ports.TickHandler, onState ports.StateHandler) error {
	op := "Feed.runOnce"
	onState(domain.FeedConnecting, nil)

	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			onState(domain.FeedDisconnected, nil)
			return nil
		}
		wrapped := fmt.Errorf("%s: dial %s: %w: %w", op, f.cfg.URL, ports.ErrConnectionFailed, err)
		onState(domain.FeedDisconnected, wrapped)
		return wrapped
	}

	// Unblock the read loop when the caller stops us.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			f.sendUnsubscribe(conn, products)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-connDone:
			_ = conn.Close()
		}
	}()

	sub := subscribeRequest{Type: "subscribe", ProductIDs: products, Channels: []string{f.cfg.Channel}}
	if err := conn.WriteJSON(sub); err != nil {
		wrapped := fmt.Errorf("%s: subscribe write: %w: %w", op, ports.ErrConnectionFailed, err)
		onState(domain.FeedDisconnected, wrapped)
		return wrapped
	}
	f.logger.Info(ctx, op+": subscribe sent", map[string]interface{}{"products": products, "channel": f.cfg.Channel})

	// Keepalive pings; the feed answers with pongs that refresh the read
	// deadline.
	readTimeout := 2 * f.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go func() {
		ticker := time.NewTicker(f.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					return
				}
			case <-connDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	subscribed := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				onState(domain.FeedDisconnected, nil)
				return nil
			}
			wrapped := fmt.Errorf("%s: read: %w: %w", op, ports.ErrStreamClosed, err)
			onState(domain.FeedDisconnected, wrapped)
			return wrapped
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			f.logger.Warn(ctx, op+": undecodable frame dropped", map[string]interface{}{"error": err.Error()})
			continue
		}

		switch env.Type {
		case "ticker":
			tick, err := translateTicker(env)
			if err != nil {
				f.logger.Warn(ctx, op+": ticker dropped", map[string]interface{}{"error": err.Error()})
				continue
			}
			if !subscribed {
				// Data before (or instead of) an ack still means the
				// subscription took.
				subscribed = true
				onState(domain.FeedSubscribed, nil)
			}
			onTick(tick)
		case "subscriptions":
			if !subscribed {
				subscribed = true
				onState(domain.FeedSubscribed, nil)
			}
		case "error":
			wrapped := fmt.Errorf("%s: feed error %q (%s): %w", op, env.Message, env.Reason, ports.ErrSubscribeRejected)
			onState(domain.FeedDisconnected, wrapped)
			return wrapped
		default:
			f.logger.Debug(ctx, op+": unhandled message type", map[string]interface{}{"type": env.Type})
		}
	}
}

// sendUnsubscribe is best effort during teardown.
func (f *Feed) sendUnsubscribe(conn *websocket.Conn, products []string) {
	req := subscribeRequest{Type: "unsubscribe", ProductIDs: products, Channels: []string{f.cfg.Channel}}
	_ = conn.WriteJSON(req)
}

// translateTicker converts an inbound ticker frame to the domain tick.
func translateTicker(env envelope) (domain.Tick, error) {
	if env.ProductID == "" {
		return domain.Tick{}, fmt.Errorf("ticker without product_id")
	}
	price, err := strconv.ParseFloat(env.Price, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing price %q: %w", env.Price, err)
	}
	ts := time.Now().UTC()
	if env.Time != "" {
		parsed, err := time.Parse(time.RFC3339, env.Time)
		if err != nil {
			return domain.Tick{}, fmt.Errorf("parsing time %q: %w", env.Time, err)
		}
		ts = parsed.UTC()
	}
	return domain.Tick{Product: env.ProductID, Price: price, Time: ts}, nil
}
