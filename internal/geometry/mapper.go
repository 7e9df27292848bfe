package geometry

import (
	"math"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
)

func checkZoom(zoom float64) error {
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return svcerrors.NewInvalidParameterError("zoom", zoom)
	}
	return nil
}

// ToNative converts a screen-space point rendered at zoom into page-native units.
func ToNative(p Point, zoom float64) (Point, error) {
	if err := checkZoom(zoom); err != nil {
		return Point{}, err
	}
	return Point{X: p.X / zoom, Y: p.Y / zoom}, nil
}

// ToScreen converts a page-native point into screen space at zoom.
func ToScreen(p Point, zoom float64) (Point, error) {
	if err := checkZoom(zoom); err != nil {
		return Point{}, err
	}
	return Point{X: p.X * zoom, Y: p.Y * zoom}, nil
}

// RectToNative converts both corners of a screen-space rect.
func RectToNative(r Rect, zoom float64) (Rect, error) {
	if err := checkZoom(zoom); err != nil {
		return Rect{}, err
	}
	return Rect{X0: r.X0 / zoom, Y0: r.Y0 / zoom, X1: r.X1 / zoom, Y1: r.Y1 / zoom}, nil
}

// RectToScreen converts both corners of a page-native rect.
func RectToScreen(r Rect, zoom float64) (Rect, error) {
	if err := checkZoom(zoom); err != nil {
		return Rect{}, err
	}
	return Rect{X0: r.X0 * zoom, Y0: r.Y0 * zoom, X1: r.X1 * zoom, Y1: r.Y1 * zoom}, nil
}
