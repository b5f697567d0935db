// Package pdftest builds small PDF fixtures for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"codeberg.org/go-pdf/fpdf"
)

// PageSize is a page's width and height in points.
type PageSize struct {
	Width, Height float64
}

var (
	Letter          = PageSize{Width: 612, Height: 792}
	LetterLandscape = PageSize{Width: 792, Height: 612}
)

// Pages returns n letter-sized portrait pages.
func Pages(n int) []PageSize {
	out := make([]PageSize, n)
	for i := range out {
		out[i] = Letter
	}
	return out
}

// Build renders one labelled page per size.
func Build(pages ...PageSize) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages requested")
	}
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetFont("Helvetica", "", 12)
	for i, p := range pages {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: p.Width, Ht: p.Height})
		pdf.Text(72, 72, fmt.Sprintf("Fixture page %d", i+1))
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Write builds a fixture and writes it to path, failing the test on error.
func Write(t testing.TB, path string, pages ...PageSize) {
	t.Helper()
	data, err := Build(pages...)
	if err != nil {
		t.Fatalf("build fixture %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}
