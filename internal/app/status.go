package app

import "candleView/internal/domain"

// Status is the host-facing snapshot of connectivity and data state. The
// terminal footer renders Message with a style picked from Level.
type Status struct {
	Symbol        string
	Product       string
	Granularity   domain.Granularity
	ScaleMode     domain.ScaleMode
	TimeFormat12h bool

	FeedState domain.FeedState
	FeedErr   error

	Fetching  bool
	FetchErr  error
	RenderErr error

	LastPrice float64
	HasPrice  bool

	Bars         int
	VisibleStart int
	VisibleEnd   int
}

// Level classifies the status for presentation. Errors that need user
// action outrank transient connectivity states.
func (st Status) Level() domain.StatusLevel {
	switch {
	case st.FetchErr != nil || st.RenderErr != nil:
		return domain.StatusError
	case st.Fetching || st.FeedState != domain.FeedSubscribed:
		return domain.StatusWarn
	default:
		return domain.StatusInfo
	}
}

// Message is the single line shown in the footer.
func (st Status) Message() string {
	switch {
	case st.FetchErr != nil:
		return "history fetch failed, press r to retry"
	case st.RenderErr != nil:
		return "chart state invalid, waiting for fresh data"
	case st.Fetching:
		return "loading history"
	case st.FeedState == domain.FeedConnecting:
		return "connecting to live feed"
	case st.FeedState == domain.FeedDisconnected:
		return "live feed down, reconnect pending"
	default:
		return "live"
	}
}
