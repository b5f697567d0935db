// Package tesseract provides an ocr.Engine backed by the gosseract client.
// It links libtesseract through cgo, so it is kept apart from the pipeline
// packages and wired only by the command.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/Lllllllleong/printintake/internal/ocr"
)

// Options configures each engine handle.
type Options struct {
	// WorkDir receives the cropped zone images handed to tesseract.
	WorkDir string
	// TessdataPrefix overrides the trained-data location when non-empty.
	TessdataPrefix string
	Languages      []string
}

// Engine owns one gosseract client. It is not safe for concurrent use; the
// mutex only serializes Close against an in-flight recognition.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   Options
}

// NewFactory returns an ocr.Factory that starts tesseract handles with opts.
func NewFactory(opts Options) ocr.Factory {
	return func() (ocr.Engine, error) {
		return New(opts)
	}
}

// New starts a tesseract handle with dictionary correction turned off, so the
// engine reports what it reads rather than what it expects.
func New(opts Options) (*Engine, error) {
	c := gosseract.NewClient()
	if opts.TessdataPrefix != "" {
		c.TessdataPrefix = opts.TessdataPrefix
	}
	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	for _, v := range []gosseract.SettableVariable{"load_system_dawg", "load_freq_dawg"} {
		if err := c.SetVariable(v, "0"); err != nil {
			c.Close()
			return nil, fmt.Errorf("set variable %s: %w", v, err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	return &Engine{client: c, opts: opts}, nil
}

// Recognize crops the zone out of the page, hands it to tesseract through a
// scratch file in the working directory and returns the recognized text.
func (e *Engine) Recognize(ctx context.Context, page ocr.Page, zone ocr.Zone) (string, error) {
	img, ok := page.Crop(zone)
	if !ok {
		return "", errors.New("address zone outside rendered page")
	}

	scratch, err := os.CreateTemp(e.opts.WorkDir, "zone-*.png")
	if err != nil {
		return "", fmt.Errorf("create scratch image: %w", err)
	}
	defer os.Remove(scratch.Name())
	if err := png.Encode(scratch, img); err != nil {
		scratch.Close()
		return "", fmt.Errorf("encode zone image: %w", err)
	}
	if err := scratch.Close(); err != nil {
		return "", fmt.Errorf("write zone image: %w", err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.client == nil {
			done <- result{err: errors.New("engine closed")}
			return
		}
		if err := e.client.SetImage(scratch.Name()); err != nil {
			done <- result{err: fmt.Errorf("set image: %w", err)}
			return
		}
		if page.DPI > 0 {
			if err := e.client.SetVariable("user_defined_dpi", fmt.Sprint(int(page.DPI))); err != nil {
				done <- result{err: fmt.Errorf("set dpi: %w", err)}
				return
			}
		}
		text, err := e.client.Text()
		if err != nil {
			err = fmt.Errorf("recognize text: %w", err)
		}
		done <- result{text: strings.TrimSpace(text), err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close shuts the engine down, waiting for any recognition still running.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
