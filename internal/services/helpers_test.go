package services

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yeka/zip"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/models"
	"github.com/Lllllllleong/printintake/internal/ocr"
	"github.com/Lllllllleong/printintake/internal/pdftest"
)

var premier = models.Category{
	Key:               "Premier",
	SourceFolder:      "CCSAPB",
	DestinationFolder: "CCSAPB",
	Orientation:       models.Portrait,
	Enabled:           true,
}

func newTestConfig(t *testing.T, cats ...models.Category) *config.Config {
	t.Helper()
	root := t.TempDir()
	if len(cats) == 0 {
		cats = []models.Category{premier}
	}
	return &config.Config{
		SourceRoot:         filepath.Join(root, "ftp"),
		OutputRoot:         filepath.Join(root, "out"),
		ArchiveRoot:        filepath.Join(root, "archive"),
		StagingDir:         filepath.Join(root, "work", "Input"),
		ErrorLogDir:        filepath.Join(root, "work", "ErrorLogs"),
		OCRWorkDir:         filepath.Join(root, "work", "Temp"),
		ArchivePrefix:      "Clear Channel",
		ErrorLogRetention:  30 * 24 * time.Hour,
		OCRConcurrency:     3,
		ExtractConcurrency: 2,
		OCRTimeout:         30 * time.Second,
		ExtractTimeout:     30 * time.Second,
		RenderDPI:          72,
		AddressZone:        config.DefaultAddressZone,
		Categories:         cats,
	}
}

type fakeEngine struct {
	text string
}

func (e *fakeEngine) Recognize(ctx context.Context, page ocr.Page, zone ocr.Zone) (string, error) {
	return e.text, nil
}

func (e *fakeEngine) Close() error { return nil }

// fakeRenderer fails for files whose base name is listed in fail.
type fakeRenderer struct {
	fail map[string]bool
}

func (r *fakeRenderer) RenderFirstPage(ctx context.Context, path string) (ocr.Page, error) {
	if r.fail[filepath.Base(path)] {
		return ocr.Page{}, errors.New("cannot rasterize page")
	}
	return ocr.Page{Image: image.NewGray(image.Rect(0, 0, 612, 792)), DPI: 72}, nil
}

type notice struct {
	subject, body string
}

type fakeNotifier struct {
	mu      sync.Mutex
	err     error
	notices []notice
}

func (n *fakeNotifier) Notify(ctx context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice{subject: subject, body: body})
	return nil
}

func (n *fakeNotifier) sent() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

type recordingLedger struct {
	mu      sync.Mutex
	records []models.RunRecord
}

func (l *recordingLedger) Record(ctx context.Context, rec models.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// final returns the last record written for category.
func (l *recordingLedger) final(category string) (models.RunRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Category == category {
			return l.records[i], true
		}
	}
	return models.RunRecord{}, false
}

type testEnv struct {
	cfg      *config.Config
	notifier *fakeNotifier
	renderer *fakeRenderer
	ledger   *recordingLedger
	pipeline *Pipeline
}

func newTestEnv(t *testing.T, cats ...models.Category) *testEnv {
	t.Helper()
	env := &testEnv{
		cfg:      newTestConfig(t, cats...),
		notifier: &fakeNotifier{},
		renderer: &fakeRenderer{fail: map[string]bool{}},
		ledger:   &recordingLedger{},
	}
	pool := ocr.NewPool(env.cfg.OCRConcurrency, func() (ocr.Engine, error) {
		return &fakeEngine{text: "john smith\n12 main st"}, nil
	})
	t.Cleanup(func() { pool.Close() })

	reporter := NewReporter(env.notifier, &ErrorLogWriter{Dir: env.cfg.ErrorLogDir})
	env.pipeline = NewPipeline(
		env.cfg,
		NewExtractor(env.cfg, reporter),
		NewOCRStage(env.cfg, pool, env.renderer, NewAnnotator()),
		NewMerger(env.cfg),
		NewDelivery(env.cfg, nil),
		reporter,
		env.ledger,
	)
	return env
}

type zipEntry struct {
	name     string
	data     []byte
	password string
}

func writeZip(t *testing.T, path string, entries ...zipEntry) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		var w io.Writer
		if e.password != "" {
			w, err = zw.Encrypt(e.name, e.password, zip.AES256Encryption)
		} else {
			w, err = zw.Create(e.name)
		}
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write zip entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip %s: %v", path, err)
	}
}

func pdfEntry(t *testing.T, name string, pages int) zipEntry {
	t.Helper()
	data, err := pdftest.Build(pdftest.Pages(pages)...)
	if err != nil {
		t.Fatal(err)
	}
	return zipEntry{name: name, data: data}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
