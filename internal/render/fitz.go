// Package render rasterizes PDF pages through MuPDF (go-fitz).
package render

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/Lllllllleong/printintake/internal/ocr"
)

// FitzRenderer renders the first page of a document at a fixed resolution.
type FitzRenderer struct {
	DPI float64
}

// NewFitzRenderer returns a renderer producing images at dpi.
func NewFitzRenderer(dpi float64) *FitzRenderer {
	return &FitzRenderer{DPI: dpi}
}

// RenderFirstPage opens path and rasterizes page one.
func (r *FitzRenderer) RenderFirstPage(ctx context.Context, path string) (ocr.Page, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Page{}, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return ocr.Page{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return ocr.Page{}, fmt.Errorf("%s has no pages", path)
	}
	img, err := doc.ImageDPI(0, r.DPI)
	if err != nil {
		return ocr.Page{}, fmt.Errorf("failed to render page 1: %w", err)
	}
	return ocr.Page{Image: img, DPI: r.DPI}, nil
}
