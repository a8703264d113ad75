package chart

// The scene is the renderer's output: a flat, ordered batch of primitives
// in pixel space. A sink swaps whole scenes atomically; nothing is ever
// patched into a scene after it leaves the renderer, so two passes over
// the same snapshot produce byte-for-byte equal trees.

// GridAxis tells a sink which way a grid line runs.
type GridAxis int

const (
	GridHorizontal GridAxis = iota
	GridVertical
)

// GridLine is one full-width or full-height rule line.
type GridLine struct {
	Axis GridAxis
	X1   float64
	Y1   float64
	X2   float64
	Y2   float64
}

// LabelSide tells a sink which edge a label annotates.
type LabelSide int

const (
	SideRight  LabelSide = iota // price labels, right edge
	SideBottom                  // time labels, bottom edge
)

// Label is one axis annotation anchored at (X, Y).
type Label struct {
	Side LabelSide
	X    float64
	Y    float64
	Text string
}

// Candle is one drawable bar: a body between open and close and a wick
// between high and low, centered on column X. All Y values are already
// transformed; Bullish picks the body color.
type Candle struct {
	X         float64
	BodyWidth float64
	YOpen     float64
	YClose    float64
	YHigh     float64
	YLow      float64
	Bullish   bool
}

// PriceMarker is the horizontal live-price line with its edge tag.
type PriceMarker struct {
	Y    float64
	Text string
}

// Scene is one complete visual tree for a render pass.
type Scene struct {
	Width  float64
	Height float64

	Grid    []GridLine
	Labels  []Label
	Candles []Candle
	Marker  *PriceMarker

	// Notice is set instead of drawable content when there is nothing to
	// chart (empty series).
	Notice string
}

// Sink receives completed scenes. Implementations must treat a scene as
// immutable and replace their previous one wholesale.
type Sink interface {
	SetScene(scene *Scene)
}
