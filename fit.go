package aippt

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/k1LoW/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/text/width"
)

const (
	minFontSize = 10.0
	textPadding = 10.0
)

// Measurer measures the rendered width of a single line of text.
type Measurer interface {
	Measure(text string, size float64, family string) float64
}

// FitRequest describes a text placeholder to fit.
type FitRequest struct {
	Text       string
	FontSize   float64
	FontFamily string
	Width      float64
	Height     float64
	LineHeight float64
	MaxLines   int
	// Longest is measured instead of Text so that sibling placeholders share one size.
	Longest string
}

// Fitter computes the largest font size keeping text within a box and line budget.
type Fitter struct {
	measurer Measurer
}

func NewFitter(m Measurer) *Fitter {
	return &Fitter{measurer: m}
}

// Fit returns the fitted font size and whether the text still overflows at the floor size.
func (f *Fitter) Fit(req FitRequest) (float64, bool) {
	text := req.Text
	if req.Longest != "" {
		text = req.Longest
	}
	size := req.FontSize
	if size < minFontSize {
		return minFontSize, false
	}
	for size >= minFontSize {
		lines := math.Ceil(f.measurer.Measure(text, size, req.FontFamily) / req.Width)
		if req.MaxLines > 1 && req.Height > 0 {
			lineHeight := req.LineHeight
			if size < 15 {
				lineHeight = 1.2
			}
			if lines*max(size, 16)*lineHeight*1.2 <= req.Height {
				return size, false
			}
		}
		if lines <= float64(req.MaxLines) {
			return size, false
		}
		step := 2.0
		if size <= 22 {
			step = 1
		}
		size -= step
	}
	return minFontSize, true
}

// FontMeasurer measures text with an OpenType font. East Asian wide and fullwidth runes count as one em.
type FontMeasurer struct {
	font  *opentype.Font
	faces *lru.Cache[float64, font.Face]
	mu    sync.Mutex
}

// NewFontMeasurer returns a measurer for the given TTF/OTF data. Empty data selects Go Regular.
func NewFontMeasurer(ttf []byte) (_ *FontMeasurer, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	if len(ttf) == 0 {
		ttf = goregular.TTF
	}
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	faces, err := lru.New[float64, font.Face](32)
	if err != nil {
		return nil, fmt.Errorf("failed to create face cache: %w", err)
	}
	return &FontMeasurer{
		font:  f,
		faces: faces,
	}, nil
}

func (m *FontMeasurer) face(size float64) (font.Face, error) {
	if face, ok := m.faces.Get(size); ok {
		return face, nil
	}
	face, err := opentype.NewFace(m.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	m.faces.Add(size, face)
	return face, nil
}

// Measure ignores family and measures every face with the loaded font.
func (m *FontMeasurer) Measure(text string, size float64, _ string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	face, err := m.face(size)
	if err != nil {
		return fallbackWidth(text, size)
	}
	var w float64
	for _, r := range text {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += size
			continue
		}
		adv, ok := face.GlyphAdvance(r)
		if !ok {
			w += size / 2
			continue
		}
		w += float64(adv) / 64
	}
	return w
}

// fallbackWidth approximates width as one em for wide runes and half an em otherwise.
func fallbackWidth(text string, size float64) float64 {
	var w float64
	for _, r := range text {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += size
		default:
			w += size / 2
		}
	}
	return w
}

var (
	defaultMeasurerOnce sync.Once
	defaultMeasurer     Measurer
)

func getDefaultMeasurer() Measurer {
	defaultMeasurerOnce.Do(func() {
		m, err := NewFontMeasurer(nil)
		if err != nil {
			defaultMeasurer = measureFunc(fallbackWidth)
			return
		}
		defaultMeasurer = m
	})
	return defaultMeasurer
}

type measureFunc func(text string, size float64) float64

func (f measureFunc) Measure(text string, size float64, _ string) float64 {
	return f(text, size)
}

// fitBox returns the usable text box of an element.
func fitBox(el *Element) (w, h float64) {
	return el.Width - textPadding*2 - 2, el.Height - textPadding*2 - 2
}

// fitLineHeight returns the line height used to fit text into el.
func fitLineHeight(el *Element) float64 {
	if el.Kind == ElementKindText {
		if el.Text.LineHeight != 0 {
			return el.Text.LineHeight
		}
		return 1.5
	}
	return 1.2
}
