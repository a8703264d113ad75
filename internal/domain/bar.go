package domain

import (
	"math"
	"time"
)

// Bar represents a single OHLC candlestick for one time bucket.
// Timestamp is the bucket open time in unix seconds; bars in a series are
// ordered ascending and spaced exactly one granularity apart.
type Bar struct {
	Timestamp int64   // Bucket open time (unix seconds)
	Low       float64 // Lowest traded price in the bucket
	High      float64 // Highest traded price in the bucket
	Open      float64 // First traded price in the bucket
	Close     float64 // Last traded price in the bucket
	Volume    float64 // Traded volume in the bucket
}

// OpenTime returns the bucket open time as a time.Time.
func (b Bar) OpenTime() time.Time {
	return time.Unix(b.Timestamp, 0).UTC()
}

// IsValid reports whether all price fields are finite and the high/low
// bracket holds. Bars failing this are skipped by consumers, never redrawn
// with substituted values.
func (b Bar) IsValid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Low <= b.High
}

// Bullish reports whether the bar closed at or above its open.
// Drives body coloring.
func (b Bar) Bullish() bool {
	return b.Close >= b.Open
}

// SortBarsAscending normalizes a fetched series to ascending timestamp
// order in place. Feeds return bars either oldest-first or newest-first;
// the direction is detected by comparing the first and last timestamps,
// so the common already-sorted case costs one comparison.
func SortBarsAscending(bars []Bar) {
	if len(bars) < 2 {
		return
	}
	if bars[0].Timestamp <= bars[len(bars)-1].Timestamp {
		return
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}
