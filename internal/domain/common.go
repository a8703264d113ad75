package domain

import (
	"fmt"
	"time"
)

// ScaleMode selects the price-axis transform.
type ScaleMode string

const (
	ScaleLinear ScaleMode = "linear"
	ScaleLog    ScaleMode = "log"
)

// FeedState represents the lifecycle state of a live market-data subscription.
type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedSubscribed   FeedState = "subscribed"
)

// StatusLevel classifies user-visible status messages.
type StatusLevel string

const (
	StatusInfo  StatusLevel = "info"
	StatusWarn  StatusLevel = "warn"
	StatusError StatusLevel = "error"
)

// Tick is a single streamed price update for one product.
type Tick struct {
	Product string    // Product identifier as used by the feed (e.g. "BTC-USD")
	Price   float64   // Last traded price
	Time    time.Time // Event time reported by the feed
}

// Preferences are the only chart settings persisted across sessions.
type Preferences struct {
	LogScale      bool // Price axis in logarithmic mode
	TimeFormat12h bool // Render time labels in 12-hour format
}

// Granularity is the duration covered by one Bar, in seconds.
type Granularity int64

const (
	Gran1m  Granularity = 60
	Gran5m  Granularity = 300
	Gran15m Granularity = 900
	Gran30m Granularity = 1800
	Gran1h  Granularity = 3600
	Gran4h  Granularity = 14400
	Gran1d  Granularity = 86400
)

// Granularities lists the supported bucket widths in ascending order.
var Granularities = []Granularity{Gran1m, Gran5m, Gran15m, Gran30m, Gran1h, Gran4h, Gran1d}

// ParseGranularity converts a short interval label ("1m", "1h", "1d") into
// a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "1m":
		return Gran1m, nil
	case "5m":
		return Gran5m, nil
	case "15m":
		return Gran15m, nil
	case "30m":
		return Gran30m, nil
	case "1h":
		return Gran1h, nil
	case "4h":
		return Gran4h, nil
	case "1d":
		return Gran1d, nil
	default:
		return 0, fmt.Errorf("unsupported granularity %q", s)
	}
}

// String returns the short interval label for the granularity.
func (g Granularity) String() string {
	switch g {
	case Gran1m:
		return "1m"
	case Gran5m:
		return "5m"
	case Gran15m:
		return "15m"
	case Gran30m:
		return "30m"
	case Gran1h:
		return "1h"
	case Gran4h:
		return "4h"
	case Gran1d:
		return "1d"
	default:
		return fmt.Sprintf("%ds", int64(g))
	}
}

// Duration returns the granularity as a time.Duration.
func (g Granularity) Duration() time.Duration {
	return time.Duration(g) * time.Second
}

// Next cycles to the following supported granularity, wrapping at the end.
func (g Granularity) Next() Granularity {
	for i, cur := range Granularities {
		if cur == g {
			return Granularities[(i+1)%len(Granularities)]
		}
	}
	return Gran1h
}
