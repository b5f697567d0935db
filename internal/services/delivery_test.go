package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/yeka/zip"

	"github.com/Lllllllleong/printintake/internal/models"
)

type recordingUploader struct {
	local, object string
	err           error
}

func (u *recordingUploader) Upload(ctx context.Context, localPath, object string) error {
	u.local, u.object = localPath, object
	return u.err
}

func TestDeliverReplacesPreviousOutput(t *testing.T) {
	cfg := newTestConfig(t)
	d := NewDelivery(cfg, nil)
	dest := cfg.DestinationPath(premier)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("yesterday"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "merged.pdf")
	if err := os.WriteFile(src, []byte("today"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := d.Deliver(context.Background(), premier, models.MergedOutput{Path: src, Destination: dest})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got != dest {
		t.Errorf("Deliver = %s, want %s", got, dest)
	}
	if data, _ := os.ReadFile(dest); string(data) != "today" {
		t.Errorf("destination = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("merged file still in staging")
	}
	if want := filepath.Join(cfg.OutputRoot, "CCSAPB", "CCSAPB.pdf"); dest != want {
		t.Errorf("destination path = %s, want %s", dest, want)
	}
}

func TestArchiveInputs(t *testing.T) {
	radio := models.Category{Key: "Radio", SourceFolder: "Clear Channel", DestinationFolder: "iheart", Orientation: models.Portrait, Enabled: true}
	cfg := newTestConfig(t, premier, radio)
	for cat, files := range map[models.Category][]string{
		premier: {"one.zip", "two.zip"},
		radio:   {"three.zip"},
	} {
		dir := cfg.SourceDir(cat)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(dir, f), []byte(cat.Key+"/"+f), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	up := &recordingUploader{}
	d := NewDelivery(cfg, up)
	day := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.Local)
	d.now = func() time.Time { return day }

	path, err := d.ArchiveInputs(context.Background(), cfg.EnabledCategories())
	if err != nil {
		t.Fatalf("ArchiveInputs: %v", err)
	}
	if want := filepath.Join(cfg.ArchiveRoot, "Clear Channel Mar_5_2026.zip"); path != want {
		t.Errorf("archive path = %s, want %s", path, want)
	}
	if up.local != path || up.object != "Clear Channel Mar_5_2026.zip" {
		t.Errorf("upload = %s -> %s", up.local, up.object)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != f.Name {
			t.Errorf("%s content = %q", f.Name, data)
		}
	}
	sort.Strings(names)
	if want := []string{"Premier/one.zip", "Premier/two.zip", "Radio/three.zip"}; !reflect.DeepEqual(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
	if _, err := os.Stat(filepath.Join(cfg.SourceDir(premier), "one.zip")); err != nil {
		t.Errorf("source file removed by archiving: %v", err)
	}
}

func TestArchiveName(t *testing.T) {
	tests := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC), "Clear Channel Oct_5_2026.zip"},
		{time.Date(2026, time.October, 17, 23, 59, 0, 0, time.UTC), "Clear Channel Oct_17_2026.zip"},
		{time.Date(2027, time.January, 2, 12, 0, 0, 0, time.UTC), "Clear Channel Jan_2_2027.zip"},
	}
	for _, tt := range tests {
		if got := ArchiveName("Clear Channel", tt.day); got != tt.want {
			t.Errorf("ArchiveName(%s) = %q, want %q", tt.day.Format(time.DateOnly), got, tt.want)
		}
	}
}

func TestArchiveInputsUploadFailure(t *testing.T) {
	cfg := newTestConfig(t)
	up := &recordingUploader{err: errors.New("bucket unavailable")}
	path, err := NewDelivery(cfg, up).ArchiveInputs(context.Background(), cfg.EnabledCategories())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("local archive missing after upload failure: %v", statErr)
	}
}

func TestPruneErrorLogs(t *testing.T) {
	cfg := newTestConfig(t)
	if err := os.MkdirAll(cfg.ErrorLogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	ages := map[string]time.Duration{
		"old.zip 01012026.txt":    31 * 24 * time.Hour,
		"recent.zip 02012026.txt": 29 * 24 * time.Hour,
		"today.zip 03012026.txt":  0,
	}
	for name, age := range ages {
		p := filepath.Join(cfg.ErrorLogDir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		stamp := now.Add(-age)
		if err := os.Chtimes(p, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := NewDelivery(cfg, nil).PruneErrorLogs(now)
	if err != nil {
		t.Fatalf("PruneErrorLogs: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := dirNames(t, cfg.ErrorLogDir); !reflect.DeepEqual(got, []string{"recent.zip 02012026.txt", "today.zip 03012026.txt"}) {
		t.Errorf("remaining logs = %v", got)
	}
}

func TestPruneErrorLogsMissingDir(t *testing.T) {
	cfg := newTestConfig(t)
	if n, err := NewDelivery(cfg, nil).PruneErrorLogs(time.Now()); err != nil || n != 0 {
		t.Fatalf("PruneErrorLogs = %d, %v", n, err)
	}
}

func TestClearDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	if err := ClearDir(dir); err != nil {
		t.Fatalf("ClearDir on missing dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("ClearDir: %v", err)
	}
	if names := dirNames(t, dir); len(names) != 0 {
		t.Errorf("dir not empty: %v", names)
	}
}
