// Package gesture turns a pointer or touch drag into a swipe decision.
package gesture

import (
	"fmt"
	"math"
)

const (
	// DefaultThreshold is the horizontal distance a drag must exceed to count as a swipe.
	DefaultThreshold = 120.0

	rotationPerUnit   = 0.1
	fadeDistance      = 150.0
	minOpacity        = 0.3
	indicatorDistance = 50.0
)

type Direction int

const (
	None Direction = iota
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "none"
	}
}

type Point struct {
	X float64
	Y float64
}

// Transform is a presentation hint for the dragged card.
type Transform struct {
	TranslateX float64
	TranslateY float64
	Rotation   float64
}

func (t Transform) String() string {
	return fmt.Sprintf("translate(%gpx, %gpx) rotate(%gdeg)", t.TranslateX, t.TranslateY, t.Rotation)
}

type Options struct {
	Threshold    float64
	OnSwipeLeft  func()
	OnSwipeRight func()
}

// Engine tracks a single drag session. It is not safe for concurrent use;
// the owner of the pointer events drives it.
type Engine struct {
	threshold float64
	onLeft    func()
	onRight   func()

	origin   Point
	offset   Point
	dragging bool
}

func New(opts Options) *Engine {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Engine{
		threshold: threshold,
		onLeft:    opts.OnSwipeLeft,
		onRight:   opts.OnSwipeRight,
	}
}

// Start begins a drag at (x, y). Starting while already dragging re-origins the session.
func (e *Engine) Start(x, y float64) {
	e.origin = Point{X: x, Y: y}
	e.offset = Point{}
	e.dragging = true
}

func (e *Engine) Move(x, y float64) {
	if !e.dragging {
		return
	}
	e.offset = Point{X: x - e.origin.X, Y: y - e.origin.Y}
}

// End releases the drag and returns the direction that fired, if any.
// The drag state is reset whether or not the threshold was crossed.
func (e *Engine) End() Direction {
	if !e.dragging {
		return None
	}

	dir := None
	if x := e.offset.X; math.Abs(x) > e.threshold {
		if x > 0 {
			dir = Right
		} else {
			dir = Left
		}
	}

	e.dragging = false
	e.offset = Point{}

	switch dir {
	case Right:
		if e.onRight != nil {
			e.onRight()
		}
	case Left:
		if e.onLeft != nil {
			e.onLeft()
		}
	}

	return dir
}

// Cancel handles the pointer leaving the tracking area exactly like a release.
func (e *Engine) Cancel() Direction {
	return e.End()
}

func (e *Engine) Dragging() bool { return e.dragging }

func (e *Engine) Offset() Point { return e.offset }

func (e *Engine) Threshold() float64 { return e.threshold }

func (e *Engine) Transform() Transform {
	return Transform{
		TranslateX: e.offset.X,
		TranslateY: e.offset.Y,
		Rotation:   e.offset.X * rotationPerUnit,
	}
}

func (e *Engine) Opacity() float64 {
	return math.Max(minOpacity, 1-math.Abs(e.offset.X)/fadeDistance)
}

// Indicator returns the direction the card leans to once the drag is far enough
// to show a like/pass badge. It does not imply the swipe will fire.
func (e *Engine) Indicator() Direction {
	if !e.dragging || math.Abs(e.offset.X) < indicatorDistance {
		return None
	}
	if e.offset.X > 0 {
		return Right
	}
	return Left
}
