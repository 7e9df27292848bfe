// Package geometry holds page-native rectangles and the screen/native coordinate mapper.
//
// Page-native space has its origin at the top-left corner of the page with y
// growing downwards, in PDF points.
package geometry

import (
	"fmt"
	"math"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
)

// Point is a position in page-native space.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle in page-native space.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// NewRect builds a Rect from its corners.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Validate reports INVALID_RECT when the corners are inverted or non-finite.
func (r Rect) Validate(page int) error {
	for _, v := range [...]float64{r.X0, r.Y0, r.X1, r.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return svcerrors.NewInvalidRectError(page, r.X0, r.Y0, r.X1, r.Y1, "non-finite coordinate")
		}
	}
	if r.X1 < r.X0 {
		return svcerrors.NewInvalidRectError(page, r.X0, r.Y0, r.X1, r.Y1, "x1 < x0")
	}
	if r.Y1 < r.Y0 {
		return svcerrors.NewInvalidRectError(page, r.X0, r.Y0, r.X1, r.Y1, "y1 < y0")
	}
	return nil
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area is zero for degenerate or inverted rects.
func (r Rect) Area() float64 {
	if r.X1 <= r.X0 || r.Y1 <= r.Y0 {
		return 0
	}
	return r.Width() * r.Height()
}

// IsEmpty reports a zero-area rect.
func (r Rect) IsEmpty() bool {
	return r.Area() == 0
}

// Intersect returns the overlap of r and o; the result is empty when they are disjoint.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
	if out.X1 < out.X0 || out.Y1 < out.Y0 {
		return Rect{}
	}
	return out
}

// Intersects reports a positive-area overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.Intersect(o).Area() > 0
}

// Contains reports whether o lies entirely within r (edges inclusive).
func (r Rect) Contains(o Rect) bool {
	return o.X0 >= r.X0 && o.Y0 >= r.Y0 && o.X1 <= r.X1 && o.Y1 <= r.Y1
}

// OverlapFraction is the share of r's area that lies inside clip.
func (r Rect) OverlapFraction(clip Rect) float64 {
	a := r.Area()
	if a == 0 {
		return 0
	}
	return r.Intersect(clip).Area() / a
}

// Expand grows the rect by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{X0: r.X0 - margin, Y0: r.Y0 - margin, X1: r.X1 + margin, Y1: r.Y1 + margin}
}

// Union returns the smallest rect covering r and o. An empty r yields o.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

func (r Rect) Center() Point {
	return Point{X: (r.X0 + r.X1) / 2, Y: (r.Y0 + r.Y1) / 2}
}

// Array returns [x0, y0, x1, y1], the wire form of a rect.
func (r Rect) Array() [4]float64 {
	return [4]float64{r.X0, r.Y0, r.X1, r.Y1}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g,%g,%g)", r.X0, r.Y0, r.X1, r.Y1)
}

// Round2 rounds to two decimals, the precision reported for baselines and sizes.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
