package pdfops

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/printintake/internal/models"
	"github.com/Lllllllleong/printintake/internal/pdftest"
)

func TestPageCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "three.pdf")
	pdftest.Write(t, path, pdftest.Pages(3)...)

	n, err := PageCount(path)
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("PageCount = %d, want 3", n)
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := PageCount(path); err == nil {
		t.Fatal("expected error for non-PDF input")
	}
}

func TestAnnotateRotation(t *testing.T) {
	mixed := []pdftest.PageSize{pdftest.Letter, pdftest.LetterLandscape, pdftest.Letter}

	tests := []struct {
		name        string
		want        models.Orientation
		initial     int
		wantRotated []int
		wantRotate  []int
	}{
		{
			name:        "portrait category turns landscape pages",
			want:        models.Portrait,
			wantRotated: []int{2},
			wantRotate:  []int{0, 90, 0},
		},
		{
			name:        "landscape category turns portrait pages",
			want:        models.Landscape,
			wantRotated: []int{1, 3},
			wantRotate:  []int{90, 0, 90},
		},
		{
			name:        "existing rotation is advanced",
			want:        models.Landscape,
			initial:     270,
			wantRotated: []int{1, 3},
			wantRotate:  []int{0, 270, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			in := filepath.Join(dir, "in.pdf")
			pdftest.Write(t, in, mixed...)
			if tt.initial != 0 {
				if err := api.RotateFile(in, "", tt.initial, nil, newConfiguration()); err != nil {
					t.Fatalf("RotateFile: %v", err)
				}
			}
			data, err := os.ReadFile(in)
			if err != nil {
				t.Fatal(err)
			}

			out, res, err := Annotate(data, "JOHN SMITH", tt.want)
			if err != nil {
				t.Fatalf("Annotate: %v", err)
			}
			if res.PageCount != 3 {
				t.Errorf("PageCount = %d, want 3", res.PageCount)
			}
			if !reflect.DeepEqual(res.Rotated, tt.wantRotated) {
				t.Errorf("Rotated = %v, want %v", res.Rotated, tt.wantRotated)
			}

			outPath := filepath.Join(dir, "out.pdf")
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				t.Fatal(err)
			}
			infos, err := Inspect(outPath)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			got := make([]int, len(infos))
			for i, p := range infos {
				got[i] = p.Rotate
			}
			if !reflect.DeepEqual(got, tt.wantRotate) {
				t.Errorf("rotations = %v, want %v", got, tt.wantRotate)
			}
		})
	}
}

// Orientation is judged from the page box alone, so a landscape box that is
// already displayed upright through /Rotate is still turned once more.
func TestAnnotateIgnoresRotateWhenJudgingOrientation(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	pdftest.Write(t, in, pdftest.LetterLandscape)
	if err := api.RotateFile(in, "", 90, nil, newConfiguration()); err != nil {
		t.Fatalf("RotateFile: %v", err)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}

	out, res, err := Annotate(data, "", models.Portrait)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if !reflect.DeepEqual(res.Rotated, []int{1}) {
		t.Errorf("Rotated = %v, want [1]", res.Rotated)
	}
	outPath := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		t.Fatal(err)
	}
	infos, err := Inspect(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Rotate != 180 || !infos[0].Landscape() {
		t.Errorf("page = %+v, want landscape box with rotate 180", infos)
	}
}

func TestAnnotateWritesMarkerOnFirstPageOnly(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	pdftest.Write(t, in, pdftest.Pages(2)...)
	data, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}

	out, _, err := Annotate(data, "JANE DOE\n12 MAIN ST (REAR)", models.Portrait)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	outPath := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := PageContent(outPath, 1)
	if err != nil {
		t.Fatalf("PageContent(1): %v", err)
	}
	for _, want := range []string{"(PAGE-1) Tj", "(JANE DOE) Tj", `(12 MAIN ST \(REAR\)) Tj`, " gs"} {
		if !bytes.Contains(first, []byte(want)) {
			t.Errorf("page 1 content missing %q", want)
		}
	}

	second, err := PageContent(outPath, 2)
	if err != nil {
		t.Fatalf("PageContent(2): %v", err)
	}
	if bytes.Contains(second, []byte(FirstPageMarker)) {
		t.Error("page 2 carries the first-page marker")
	}
}

func TestAnnotateEmptyText(t *testing.T) {
	data, err := pdftest.Build(pdftest.Letter)
	if err != nil {
		t.Fatal(err)
	}
	out, res, err := Annotate(data, "", models.Portrait)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if res.PageCount != 1 || len(res.Rotated) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	n, err := PageCountReader(bytes.NewReader(out))
	if err != nil || n != 1 {
		t.Fatalf("PageCountReader = %d, %v", n, err)
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i, n := range []int{1, 2, 3} {
		p := filepath.Join(dir, string(rune('a'+i))+".pdf")
		pdftest.Write(t, p, pdftest.Pages(n)...)
		files = append(files, p)
	}

	out := filepath.Join(dir, "merged.pdf")
	if err := Merge(files, out); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	n, err := PageCount(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Fatalf("merged page count = %d, want 6", n)
	}
}

func TestMergeSingleFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "only.pdf")
	pdftest.Write(t, in, pdftest.Pages(4)...)

	out := filepath.Join(dir, "merged.pdf")
	if err := Merge([]string{in}, out); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if n, err := PageCount(out); err != nil || n != 4 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
}

func TestMergeNoFiles(t *testing.T) {
	if err := Merge(nil, filepath.Join(t.TempDir(), "x.pdf")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEscapeString(t *testing.T) {
	tests := map[string]string{
		"PLAIN":     "PLAIN",
		`A(B)C\D`:   `A\(B\)C\\D`,
		"TAB\tHERE": `TAB\011HERE`,
		"CAFÉ":      "CAF\xc9",
	}
	for in, want := range tests {
		if got := escapeString(in); got != want {
			t.Errorf("escapeString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTextLines(t *testing.T) {
	got := textLines("  JOHN SMITH \r\n\r\n42 ELM RD\r\n")
	want := []string{"JOHN SMITH", "42 ELM RD"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("textLines = %q, want %q", got, want)
	}
}
