package aippt

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"unicode/utf8"
)

// fixedMeasurer measures every rune as one em.
var fixedMeasurer = measureFunc(func(text string, size float64) float64 {
	return float64(utf8.RuneCountInString(text)) * size
})

func styled(text string, size int) string {
	return `<p style="font-size: ` + formatFontSize(float64(size)) + `px;">` + text + `</p>`
}

func textEl(id string, tt TextType, text string, left, top, width, height float64) *Element {
	return &Element{
		ID:     id,
		Kind:   ElementKindText,
		Left:   left,
		Top:    top,
		Width:  width,
		Height: height,
		Text:   &StyledText{Type: tt, Content: styled(text, 20), LineHeight: 1.5},
	}
}

func inGroup(group string, el *Element) *Element {
	el.GroupID = group
	return el
}

func imageEl(id string, left, top, width, height float64) *Element {
	return &Element{
		ID:        id,
		Kind:      ElementKindImage,
		Left:      left,
		Top:       top,
		Width:     width,
		Height:    height,
		Src:       "placeholder.png",
		ImageType: "pageFigure",
	}
}

func tpl(id string, st SlideType, elements ...*Element) *Template {
	return &Template{ID: id, Type: st, Elements: elements}
}

// listTemplate returns a template with a title and n stacked groups of itemNumber, itemTitle and item.
func listTemplate(id string, st SlideType, n int) *Template {
	elements := []*Element{textEl(id+"-title", TextTypeTitle, "Title", 50, 20, 900, 60)}
	for i := range n {
		g := id + "-g" + strconv.Itoa(i+1)
		top := 100 + float64(i)*100
		elements = append(elements,
			inGroup(g, textEl(g+"-num", TextTypeItemNumber, strconv.Itoa(i+1), 50, top, 60, 60)),
			inGroup(g, textEl(g+"-title", TextTypeItemTitle, "Item title", 120, top, 300, 40)),
			inGroup(g, textEl(g+"-item", TextTypeItem, "Item text", 120, top+40, 800, 50)),
		)
	}
	return tpl(id, st, elements...)
}

// baseTemplates returns one template for every slide type a catalog must carry.
func baseTemplates() []*Template {
	return []*Template{
		tpl("cover-1", SlideTypeCover,
			textEl("cover-title", TextTypeTitle, "Cover title", 50, 200, 900, 80),
			textEl("cover-content", TextTypeContent, "Subtitle", 50, 300, 900, 60),
		),
		listTemplate("contents-4", SlideTypeContents, 4),
		tpl("transition-1", SlideTypeTransition,
			textEl("transition-title", TextTypeTitle, "Part title", 50, 200, 900, 80),
			textEl("transition-content", TextTypeContent, "Part text", 50, 300, 900, 60),
			textEl("transition-num", TextTypePartNumber, "01", 50, 100, 100, 80),
		),
		listTemplate("content-3", SlideTypeContent, 3),
		tpl("end-1", SlideTypeEnd,
			textEl("end-title", TextTypeTitle, "Thanks", 50, 200, 900, 80),
		),
	}
}

func newTestAssembler(t *testing.T, templates []*Template, opts ...Option) *Assembler {
	t.Helper()
	opts = append([]Option{
		WithRand(rand.New(rand.NewSource(1))), //nolint:gosec
		WithMeasurer(fixedMeasurer),
	}, opts...)
	a, err := New(NewCatalog(templates), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// textsOf returns the plain text of the placeholders tagged with tt in reading order.
func textsOf(slide *Template, tt TextType) []string {
	var texts []string
	for _, el := range slotOrder(slide.Elements, tt, orderReading) {
		texts = append(texts, plainText(el.Text.Content))
	}
	return texts
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, encodePNG(t, img), 0o600); err != nil {
		t.Fatal(err)
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
