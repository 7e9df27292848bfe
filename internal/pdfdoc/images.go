package pdfdoc

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"github.com/wudi/pdfkit/coords"
	"github.com/wudi/pdfkit/filters"
	"github.com/wudi/pdfkit/ir/raw"

	"github.com/adverant/nexus/pdfplaceholder/internal/geometry"
)

// PlacedImage is an image XObject painted on a page.
type PlacedImage struct {
	Name  string
	Box   geometry.Rect
	Image image.Image // nil when the encoding is not supported

	ctm coords.Matrix
}

// Images lists the image XObjects painted on a page, decoded where possible.
func (d *Document) Images(page int) ([]PlacedImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.page(page)
	if err != nil {
		return nil, err
	}

	var out []PlacedImage
	for _, it := range d.interpret(st, true) {
		if it.kind != itemImage {
			continue
		}
		pi := PlacedImage{Name: it.name, Box: it.box, ctm: it.ctm}
		if !it.nested {
			if obj := d.xobject(st.resources, it.name); obj != nil {
				pi.Image, _ = d.decodeImage(obj)
			}
		}
		out = append(out, pi)
	}
	return out, nil
}

func (d *Document) xobject(res *raw.DictObj, name string) raw.Object {
	xobjs := d.getDict(res, "XObject")
	if xobjs == nil {
		return nil
	}
	return xobjs.KV[name]
}

// colorSpace resolves an image colour space to its component count and, for
// Indexed spaces, the palette.
type colorSpace struct {
	comps   int
	palette []color.Color
}

func (d *Document) imageColorSpace(obj raw.Object) (colorSpace, error) {
	switch v := d.deref(obj).(type) {
	case raw.NameObj:
		switch v.Val {
		case "DeviceGray", "CalGray", "G":
			return colorSpace{comps: 1}, nil
		case "DeviceRGB", "CalRGB", "RGB":
			return colorSpace{comps: 3}, nil
		case "DeviceCMYK", "CMYK":
			return colorSpace{comps: 4}, nil
		}
		return colorSpace{}, fmt.Errorf("unsupported colour space %s", v.Val)
	case *raw.ArrayObj:
		if len(v.Items) == 0 {
			break
		}
		family, _ := d.deref(v.Items[0]).(raw.NameObj)
		switch family.Val {
		case "ICCBased":
			if len(v.Items) > 1 {
				if n, ok := d.getNumber(d.dict(v.Items[1]), "N"); ok {
					return colorSpace{comps: int(n)}, nil
				}
			}
		case "CalGray":
			return colorSpace{comps: 1}, nil
		case "CalRGB", "Lab":
			return colorSpace{comps: 3}, nil
		case "Indexed", "I":
			if len(v.Items) < 4 {
				break
			}
			base, err := d.imageColorSpace(v.Items[1])
			if err != nil {
				return colorSpace{}, err
			}
			var lookup []byte
			switch l := d.deref(v.Items[3]).(type) {
			case raw.StringObj:
				lookup = l.Bytes
			case *raw.StreamObj:
				lookup = d.streamData(v.Items[3])
			}
			cs := colorSpace{comps: 1}
			for i := 0; i+base.comps <= len(lookup); i += base.comps {
				cs.palette = append(cs.palette, pixel(lookup[i:i+base.comps], base.comps))
			}
			return cs, nil
		}
	}
	return colorSpace{}, fmt.Errorf("unsupported colour space")
}

func pixel(b []byte, comps int) color.Color {
	switch comps {
	case 1:
		return color.Gray{Y: b[0]}
	case 3:
		return color.RGBA{R: b[0], G: b[1], B: b[2], A: 255}
	case 4:
		return color.CMYK{C: b[0], M: b[1], Y: b[2], K: b[3]}
	}
	return color.Gray{}
}

// decodeImage decodes JPEG images and 8-bit unfiltered or Flate images.
func (d *Document) decodeImage(obj raw.Object) (image.Image, error) {
	s, ok := d.deref(obj).(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("image is not a stream")
	}
	names, _ := filters.ExtractFilters(s.Dict)
	if len(names) == 1 && names[0] == "DCTDecode" {
		return jpeg.Decode(bytes.NewReader(s.Data))
	}
	for _, n := range names {
		if n != "FlateDecode" && n != "LZWDecode" && n != "ASCII85Decode" && n != "ASCIIHexDecode" {
			return nil, fmt.Errorf("unsupported image filter %s", n)
		}
	}

	w, _ := d.getNumber(s.Dict, "Width")
	h, _ := d.getNumber(s.Dict, "Height")
	bpc, ok := d.getNumber(s.Dict, "BitsPerComponent")
	if !ok || bpc != 8 || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("unsupported image layout")
	}
	cs, err := d.imageColorSpace(s.Dict.KV["ColorSpace"])
	if err != nil {
		return nil, err
	}

	data := d.streamData(obj)
	width, height := int(w), int(h)
	if len(data) < width*height*cs.comps {
		return nil, fmt.Errorf("image data truncated")
	}

	if cs.palette == nil && cs.comps == 1 {
		img := image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, data[:width*height])
		return img, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * cs.comps
			var c color.Color
			if cs.palette != nil {
				idx := int(data[y*width+x])
				if idx >= len(cs.palette) {
					idx = len(cs.palette) - 1
				}
				if idx < 0 {
					c = color.Gray{}
				} else {
					c = cs.palette[idx]
				}
			} else {
				c = pixel(data[off:off+cs.comps], cs.comps)
			}
			img.Set(x, y, c)
		}
	}
	return img, nil
}

// encodeImage writes img as an 8-bit Flate image XObject, carrying over the
// soft mask and interpolation flag of the original dictionary.
func (d *Document) encodeImage(img image.Image, orig *raw.DictObj) (*raw.StreamObj, error) {
	b := img.Bounds()
	var (
		pix   []byte
		space string
	)
	switch g := img.(type) {
	case *image.Gray:
		space = "DeviceGray"
		pix = make([]byte, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			pix = append(pix, g.Pix[(y-b.Min.Y)*g.Stride:(y-b.Min.Y)*g.Stride+b.Dx()]...)
		}
	default:
		space = "DeviceRGB"
		pix = make([]byte, 0, b.Dx()*b.Dy()*3)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, gg, bb, _ := img.At(x, y).RGBA()
				pix = append(pix, byte(r>>8), byte(gg>>8), byte(bb>>8))
			}
		}
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(pix); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	dict.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(b.Dx())))
	dict.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(b.Dy())))
	dict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral(space))
	dict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(buf.Len())))
	if orig != nil {
		for _, key := range []string{"SMask", "Interpolate", "Intent"} {
			if v, ok := orig.KV[key]; ok {
				dict.KV[key] = v
			}
		}
	}
	return raw.NewStream(dict, buf.Bytes()), nil
}

// pixelRect maps a native rect to the image pixels it covers, given the
// image's CTM. ok is false for rotated or skewed placements.
func pixelRect(e pageEntry, ctm coords.Matrix, r geometry.Rect, w, h int) (image.Rectangle, bool) {
	if ctm[1] != 0 || ctm[2] != 0 || ctm[0] == 0 || ctm[3] == 0 {
		return image.Rectangle{}, false
	}
	toPixel := func(nx, ny float64) (float64, float64) {
		x, y := e.toPDF(nx, ny)
		u := (x - ctm[4]) / ctm[0]
		v := (y - ctm[5]) / ctm[3]
		return u * float64(w), (1 - v) * float64(h)
	}
	px0, py0 := toPixel(r.X0, r.Y0)
	px1, py1 := toPixel(r.X1, r.Y1)
	rect := image.Rect(
		int(math.Floor(math.Min(px0, px1))),
		int(math.Floor(math.Min(py0, py1))),
		int(math.Ceil(math.Max(px0, px1))),
		int(math.Ceil(math.Max(py0, py1))),
	)
	return rect.Intersect(image.Rect(0, 0, w, h)), true
}
