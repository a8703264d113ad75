package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Chart State Errors
	ErrInvalidPriceRange   = errors.New("price range is degenerate or violates the scale mode")
	ErrInvalidVisibleRange = errors.New("visible range is out of bounds or below the minimum width")
	ErrNoData              = errors.New("no bars loaded")
	ErrDegenerateSpan      = errors.New("axis span is zero or non-finite")
	ErrNonContiguousBar    = errors.New("bar does not continue the series at the configured granularity")

	// Market Data Errors
	ErrExchangeUnavailable = errors.New("market data API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the market data source")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrStreamClosed        = errors.New("live feed stream closed")
	ErrSubscribeRejected   = errors.New("live feed rejected the subscription")
	ErrStaleResponse       = errors.New("response no longer matches the requested instrument or granularity")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
