package ports

import (
	"context"

	"candleView/internal/domain"
)

// HistoryProvider fetches historical OHLC bars used to seed the chart.
// Implementations may return bars in either chronological direction; the
// caller normalizes to ascending timestamp before use.
type HistoryProvider interface {
	// FetchBars retrieves up to limit bars for the symbol at the given
	// granularity, ending at the most recently completed bucket.
	FetchBars(ctx context.Context, symbol string, granularity domain.Granularity, limit int) ([]domain.Bar, error)
}
