// Package pdfops wraps pdfcpu with the few document operations the intake
// pipeline needs: page counting, rotation normalization, the hidden first-page
// overlay and page-copying merge.
package pdfops

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageInfo describes one page as stored in the file.
type PageInfo struct {
	Number int
	Width  float64
	Height float64
	Rotate int
}

// Landscape reports whether the page's box is wider than it is tall. The
// Rotate entry is not taken into account.
func (p PageInfo) Landscape() bool { return p.Width > p.Height }

func newConfiguration() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func readContext(rs io.ReadSeeker) (*model.Context, error) {
	ctx, err := api.ReadValidateAndOptimize(rs, newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

func readContextFile(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readContext(f)
}

// PageCount returns the number of pages in the file at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return PageCountReader(f)
}

// PageCountReader returns the number of pages in the document read from rs.
func PageCountReader(rs io.ReadSeeker) (int, error) {
	n, err := api.PageCount(rs, newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// Inspect returns box size and rotation for every page of the file at path.
func Inspect(path string) ([]PageInfo, error) {
	ctx, err := readContextFile(path)
	if err != nil {
		return nil, err
	}
	return pageInfos(ctx)
}

func pageInfos(ctx *model.Context) ([]PageInfo, error) {
	infos := make([]PageInfo, 0, ctx.PageCount)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		_, _, inh, err := ctx.PageDict(nr, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", nr, err)
		}
		if inh == nil {
			return nil, fmt.Errorf("page %d: missing page attributes", nr)
		}
		box := inh.CropBox
		if box == nil {
			box = inh.MediaBox
		}
		if box == nil {
			return nil, fmt.Errorf("page %d: no media box", nr)
		}
		infos = append(infos, PageInfo{
			Number: nr,
			Width:  box.Width(),
			Height: box.Height(),
			Rotate: normalizeRotation(inh.Rotate),
		})
	}
	return infos, nil
}

func normalizeRotation(r int) int {
	return ((r % 360) + 360) % 360
}

// PageContent returns the decoded content of page nr.
func PageContent(path string, nr int) ([]byte, error) {
	ctx, err := readContextFile(path)
	if err != nil {
		return nil, err
	}
	r, err := pdfcpu.ExtractPageContent(ctx, nr)
	if err != nil {
		return nil, fmt.Errorf("failed to extract page %d content: %w", nr, err)
	}
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

// Merge concatenates every page of files, in order, into outFile.
func Merge(files []string, outFile string) error {
	switch len(files) {
	case 0:
		return errors.New("no files to merge")
	case 1:
		return rewrite(files[0], outFile)
	}
	if err := api.MergeCreateFile(files, outFile, false, newConfiguration()); err != nil {
		return fmt.Errorf("pdfcpu merge: %w", err)
	}
	return nil
}

// rewrite copies a single document through pdfcpu so a one-file merge gets the
// same validation as a multi-file one.
func rewrite(inFile, outFile string) error {
	ctx, err := readContextFile(inFile)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return fmt.Errorf("pdfcpu write: %w", err)
	}
	return os.WriteFile(outFile, buf.Bytes(), 0o644)
}

func dictEntry(ctx *model.Context, d types.Dict, key string) (types.Dict, error) {
	obj, found := d.Find(key)
	if !found || obj == nil {
		sub := types.Dict{}
		d.Update(key, sub)
		return sub, nil
	}
	sub, err := ctx.DereferenceDict(obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if sub == nil {
		sub = types.Dict{}
		d.Update(key, sub)
	}
	return sub, nil
}
