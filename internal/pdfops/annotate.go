package pdfops

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/Lllllllleong/printintake/internal/models"
)

// FirstPageMarker is burned onto page one of every document so the start of
// each logical document can be found again inside a merged file.
const FirstPageMarker = "PAGE-1"

// Overlay placement in points from the bottom-left corner of page one.
const (
	overlayFontSize = 1
	textX, textY    = 25, 3
	markerX         = 3
	markerY         = 3
)

// AnnotateResult reports what Annotate changed.
type AnnotateResult struct {
	PageCount int
	Rotated   []int
}

// Annotate rotates every page that does not match want by a further 90
// degrees and stamps text plus FirstPageMarker onto page one with zero fill
// and stroke opacity. The page count of the returned document always equals
// the input's.
func Annotate(data []byte, text string, want models.Orientation) ([]byte, AnnotateResult, error) {
	ctx, err := readContext(bytes.NewReader(data))
	if err != nil {
		return nil, AnnotateResult{}, err
	}
	if ctx.PageCount < 1 {
		return nil, AnnotateResult{}, fmt.Errorf("document has no pages")
	}
	res := AnnotateResult{PageCount: ctx.PageCount}

	res.Rotated, err = normalizeOrientation(ctx, want)
	if err != nil {
		return nil, res, err
	}
	if err := addHiddenText(ctx, text); err != nil {
		return nil, res, err
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, res, fmt.Errorf("pdfcpu write: %w", err)
	}

	after, err := PageCountReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, res, fmt.Errorf("failed to verify annotated document: %w", err)
	}
	if after != res.PageCount {
		return nil, res, fmt.Errorf("annotation changed page count from %d to %d", res.PageCount, after)
	}
	return buf.Bytes(), res, nil
}

// normalizeOrientation applies the rotation rule and returns the numbers of
// the pages it rotated.
func normalizeOrientation(ctx *model.Context, want models.Orientation) ([]int, error) {
	infos, err := pageInfos(ctx)
	if err != nil {
		return nil, err
	}
	var rotated []int
	for _, p := range infos {
		if p.Landscape() == (want == models.Landscape) {
			continue
		}
		d, _, _, err := ctx.PageDict(p.Number, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p.Number, err)
		}
		d.Update("Rotate", types.Integer((p.Rotate+90)%360))
		rotated = append(rotated, p.Number)
	}
	return rotated, nil
}

func addHiddenText(ctx *model.Context, text string) error {
	d, _, inh, err := ctx.PageDict(1, false)
	if err != nil {
		return fmt.Errorf("page 1: %w", err)
	}

	if _, found := d.Find("Resources"); !found {
		inherited := types.Dict{}
		if inh != nil && inh.Resources != nil {
			for k, v := range inh.Resources {
				inherited[k] = v
			}
		}
		d.Update("Resources", inherited)
	}
	resources, err := dictEntry(ctx, d, "Resources")
	if err != nil {
		return err
	}
	fonts, err := dictEntry(ctx, resources, "Font")
	if err != nil {
		return err
	}
	states, err := dictEntry(ctx, resources, "ExtGState")
	if err != nil {
		return err
	}

	fontName := unusedName(fonts, "FIntake")
	fonts.Insert(fontName, types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Courier"),
		"Encoding": types.Name("WinAnsiEncoding"),
	})
	gsName := unusedName(states, "GSIntake")
	states.Insert(gsName, types.Dict{
		"Type": types.Name("ExtGState"),
		"ca":   types.Float(0),
		"CA":   types.Float(0),
	})

	open, err := newContentStream(ctx, []byte("q\n"))
	if err != nil {
		return err
	}
	overlay, err := newContentStream(ctx, overlayContent(fontName, gsName, text))
	if err != nil {
		return err
	}

	contents, err := contentArray(ctx, d)
	if err != nil {
		return err
	}
	arr := make(types.Array, 0, len(contents)+2)
	arr = append(arr, *open)
	arr = append(arr, contents...)
	arr = append(arr, *overlay)
	d.Update("Contents", arr)
	return nil
}

func unusedName(d types.Dict, base string) string {
	name := base
	for i := 1; ; i++ {
		if _, found := d.Find(name); !found {
			return name
		}
		name = base + strconv.Itoa(i)
	}
}

func contentArray(ctx *model.Context, d types.Dict) (types.Array, error) {
	obj, found := d.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}
	switch o := obj.(type) {
	case types.Array:
		return o, nil
	case types.IndirectRef:
		deref, err := ctx.Dereference(o)
		if err != nil {
			return nil, fmt.Errorf("contents: %w", err)
		}
		if arr, ok := deref.(types.Array); ok {
			return arr, nil
		}
		return types.Array{o}, nil
	}
	return nil, fmt.Errorf("unexpected contents entry %T", obj)
}

func newContentStream(ctx *model.Context, content []byte) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, fmt.Errorf("failed to create content stream: %w", err)
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode content stream: %w", err)
	}
	return ctx.IndRefForNewObject(*sd)
}

// overlayContent closes the graphics state opened ahead of the original
// content and writes the invisible text block.
func overlayContent(fontName, gsName, text string) []byte {
	var b strings.Builder
	b.WriteString("Q\nq\n")
	fmt.Fprintf(&b, "/%s gs\n", gsName)

	if lines := textLines(text); len(lines) > 0 {
		fmt.Fprintf(&b, "BT\n/%s %d Tf\n%d TL\n%d %d Td\n", fontName, overlayFontSize, overlayFontSize, textX, textY)
		for i, line := range lines {
			if i > 0 {
				b.WriteString("T*\n")
			}
			fmt.Fprintf(&b, "(%s) Tj\n", escapeString(line))
		}
		b.WriteString("ET\n")
	}

	fmt.Fprintf(&b, "BT\n/%s %d Tf\n%d %d Td\n(%s) Tj\nET\n", fontName, overlayFontSize, markerX, markerY, FirstPageMarker)
	b.WriteString("Q\n")
	return []byte(b.String())
}

var winAnsi = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())

func textLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// escapeString encodes s as WinAnsi and escapes it for a PDF literal string.
func escapeString(s string) string {
	encoded, err := winAnsi.String(s)
	if err != nil {
		encoded = s
	}
	var b strings.Builder
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		switch {
		case c == '\\' || c == '(' || c == ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
