package pdfdoc

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// maxRasterPixels bounds one rendered region; larger requests are downscaled.
const maxRasterPixels = 64 << 20

// RenderRegion rasterizes the images painted under r to a grayscale bitmap at
// scale pixels per point. Vector content is not drawn; the result is meant for
// OCR of scanned pages. r is clipped to the page first and a region that misses
// the page yields a single white pixel.
func (d *Document) RenderRegion(page int, r geometry.Rect, scale float64) (*image.Gray, error) {
	bounds, err := d.PageRect(page)
	if err != nil {
		return nil, err
	}
	images, err := d.Images(page)
	if err != nil {
		return nil, err
	}
	return compose(images, clipRegion(r, bounds), scale), nil
}

// clipRegion intersects r with the page; a rect with NaN bounds is empty.
func clipRegion(r, page geometry.Rect) geometry.Rect {
	for _, v := range r.Array() {
		if math.IsNaN(v) {
			return geometry.Rect{}
		}
	}
	return r.Intersect(page)
}

// rasterSize returns the bitmap dimensions for r, lowering scale so the
// bitmap stays within maxRasterPixels.
func rasterSize(r geometry.Rect, scale float64) (int, int, float64) {
	if r.IsEmpty() {
		return 1, 1, 1
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		scale = 1
	}
	if px := r.Width() * r.Height() * scale * scale; px > maxRasterPixels {
		scale *= math.Sqrt(maxRasterPixels / px)
	}
	w := int(math.Ceil(r.Width() * scale))
	h := int(math.Ceil(r.Height() * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h, scale
}

func compose(images []PlacedImage, r geometry.Rect, scale float64) *image.Gray {
	w, h, scale := rasterSize(r, scale)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if r.IsEmpty() {
		return dst
	}

	for _, pi := range images {
		if pi.Image == nil || !pi.Box.Intersects(r) {
			continue
		}
		ctm := pi.ctm
		if ctm[1] != 0 || ctm[2] != 0 {
			continue
		}
		src := orient(pi.Image, ctm[0] < 0, ctm[3] < 0)
		target := image.Rect(
			int(math.Round((pi.Box.X0-r.X0)*scale)),
			int(math.Round((pi.Box.Y0-r.Y0)*scale)),
			int(math.Round((pi.Box.X1-r.X0)*scale)),
			int(math.Round((pi.Box.Y1-r.Y0)*scale)),
		)
		draw.CatmullRom.Scale(dst, target, src, src.Bounds(), draw.Over, nil)
	}
	return dst
}

// orient flips img for placements with a negative scale.
func orient(img image.Image, flipX, flipY bool) image.Image {
	if !flipX && !flipY {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			sx, sy := x, y
			if flipX {
				sx = b.Dx() - 1 - x
			}
			if flipY {
				sy = b.Dy() - 1 - y
			}
			out.Set(x, y, img.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return out
}
