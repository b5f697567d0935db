// Package ocr defines the recognition capability the pipeline depends on and a
// bounded pool of engine handles. Engines are never shared between concurrent
// callers: each handle is owned by exactly one task between acquire and release.
package ocr

import (
	"context"
	"image"
	"math"
)

// Zone is a rectangle on a page expressed in inches from the top-left corner,
// independent of the resolution the page was rendered at.
type Zone struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Empty reports whether the zone has non-positive dimensions.
func (z Zone) Empty() bool { return z.Width <= 0 || z.Height <= 0 }

// Pixels converts the zone into a pixel rectangle for an image rendered at dpi.
func (z Zone) Pixels(dpi float64) image.Rectangle {
	return image.Rect(
		int(math.Round(z.X*dpi)),
		int(math.Round(z.Y*dpi)),
		int(math.Round((z.X+z.Width)*dpi)),
		int(math.Round((z.Y+z.Height)*dpi)),
	)
}

// Page is a rasterized PDF page together with the resolution it was rendered at.
type Page struct {
	Image image.Image
	DPI   float64
}

// Crop returns the part of the page covered by zone, clipped to the image
// bounds. ok is false when the zone falls entirely outside the image.
func (p Page) Crop(zone Zone) (img image.Image, ok bool) {
	b := p.Image.Bounds()
	rect := zone.Pixels(p.DPI).Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, false
	}
	if sub, isSub := p.Image.(interface {
		SubImage(r image.Rectangle) image.Image
	}); isSub {
		return sub.SubImage(rect), true
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x-rect.Min.X, y-rect.Min.Y, p.Image.At(x, y))
		}
	}
	return dst, true
}

// Engine recognizes the text inside one zone of a page. Implementations are
// not required to be safe for concurrent use.
type Engine interface {
	Recognize(ctx context.Context, page Page, zone Zone) (string, error)
	Close() error
}

// Factory starts a new engine handle.
type Factory func() (Engine, error)
