package md

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aippt/aippt"
	"github.com/aippt/aippt/template"
	"github.com/k1LoW/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Outline is a presentation outline: a title, chapters and pages of points.
type Outline struct {
	Title string `json:"title"`
	Text  string `json:"text,omitempty"`
	// Pages written before the first chapter
	Pages    []*Page    `json:"pages,omitempty"`
	Chapters []*Chapter `json:"chapters,omitempty"`

	frontmatter *Frontmatter
}

type Chapter struct {
	Title string  `json:"title"`
	Text  string  `json:"text,omitempty"`
	Pages []*Page `json:"pages,omitempty"`
}

type Page struct {
	Title  string          `json:"title"`
	Type   aippt.SlideType `json:"type"`
	Text   string          `json:"text,omitempty"`
	Points []*Point        `json:"points,omitempty"`

	Author        string              `json:"author,omitempty"`
	AuthorTitle   string              `json:"authorTitle,omitempty"`
	ImagePosition aippt.ImagePosition `json:"imagePosition,omitempty"`
	ImageDesc     string              `json:"imageDesc,omitempty"`
}

type Point struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Config is the page config written as a JSON HTML comment under a page heading.
type Config struct {
	Type          aippt.SlideType     `json:"type,omitempty"`
	Author        string              `json:"author,omitempty"`
	AuthorTitle   string              `json:"authorTitle,omitempty"`
	ImagePosition aippt.ImagePosition `json:"imagePosition,omitempty"`
	ImageDesc     string              `json:"imageDesc,omitempty"`
}

var pageTypes = []aippt.SlideType{
	aippt.SlideTypeContent,
	aippt.SlideTypeTextImage,
	aippt.SlideTypeTimeline,
	aippt.SlideTypeStatistics,
	aippt.SlideTypeQuote,
}

// ParseFile parses an outline file.
func ParseFile(f string) (_ *Outline, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline %s: %w", f, err)
	}
	return Parse(b)
}

// Parse parses a markdown outline: # is the deck title, ## a chapter, ### a page and list items its points.
// {{expr}} expressions are expanded with env, today and the frontmatter vars.
func Parse(b []byte) (_ *Outline, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	fm, body, err := splitFrontmatter(b)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{}
	if fm != nil && fm.Vars != nil {
		vars = fm.Vars
	}
	if bytes.Contains(body, []byte("{{")) {
		store := map[string]any{
			"env":   template.EnvironToMap(),
			"today": time.Now().Format(time.DateOnly),
			"vars":  vars,
		}
		expanded, err := template.Expand(string(body), store)
		if err != nil {
			return nil, fmt.Errorf("failed to expand outline: %w", err)
		}
		body = []byte(expanded)
	}

	o, err := parseOutline(body)
	if err != nil {
		return nil, err
	}
	o.frontmatter = fm
	if fm != nil {
		if fm.Title != "" {
			o.Title = fm.Title
		}
		if fm.Text != "" {
			o.Text = fm.Text
		}
	}
	return o, nil
}

func parseOutline(b []byte) (*Outline, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(b))
	o := &Outline{}
	var (
		chapter *Chapter
		page    *Page
	)
	addText := func(s string) {
		if s == "" {
			return
		}
		switch {
		case page != nil:
			page.Text = joinLines(page.Text, s)
		case chapter != nil:
			chapter.Text = joinLines(chapter.Text, s)
		default:
			o.Text = joinLines(o.Text, s)
		}
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			title := inlineText(b, v)
			switch v.Level {
			case 1:
				o.Title = title
				chapter, page = nil, nil
			case 2:
				chapter = &Chapter{Title: title}
				o.Chapters = append(o.Chapters, chapter)
				page = nil
			default:
				page = &Page{Title: title, Type: aippt.SlideTypeContent}
				if chapter != nil {
					chapter.Pages = append(chapter.Pages, page)
				} else {
					o.Pages = append(o.Pages, page)
				}
			}
		case *ast.Paragraph:
			addText(inlineText(b, v))
		case *ast.Blockquote:
			var lines []string
			for c := v.FirstChild(); c != nil; c = c.NextSibling() {
				if s := inlineText(b, c); s != "" {
					lines = append(lines, s)
				}
			}
			addText(strings.Join(lines, "\n"))
		case *ast.List:
			for li := v.FirstChild(); li != nil; li = li.NextSibling() {
				first := li.FirstChild()
				if first == nil {
					continue
				}
				s := inlineText(b, first)
				if s == "" {
					continue
				}
				if page == nil {
					// points outside of a page describe the chapter or the deck
					addText(s)
					continue
				}
				page.Points = append(page.Points, splitPoint(s))
			}
		case *ast.HTMLBlock:
			if v.HTMLBlockType != ast.HTMLBlockType2 || page == nil {
				continue
			}
			block := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(string(v.Lines().Value(b))), "<!--"), "-->"))
			cfg := &Config{}
			if err := json.Unmarshal([]byte(block), cfg); err != nil {
				continue
			}
			if err := page.apply(cfg); err != nil {
				return nil, err
			}
		}
	}
	return o, nil
}

func (p *Page) apply(cfg *Config) error {
	if cfg.Type != "" {
		if !containsType(pageTypes, cfg.Type) {
			return fmt.Errorf("unsupported page type %q in page %q", cfg.Type, p.Title)
		}
		p.Type = cfg.Type
	}
	p.Author = cfg.Author
	p.AuthorTitle = cfg.AuthorTitle
	p.ImagePosition = cfg.ImagePosition
	p.ImageDesc = cfg.ImageDesc
	return nil
}

func containsType(types []aippt.SlideType, t aippt.SlideType) bool {
	for _, tt := range types {
		if tt == t {
			return true
		}
	}
	return false
}

// Items converts the outline into content items:
// cover, contents, a transition per chapter followed by its pages, end.
func (o *Outline) Items() []aippt.Item {
	items := []aippt.Item{&aippt.Cover{Title: o.Title, Text: o.Text}}
	fm := o.frontmatter
	if len(o.Chapters) > 0 && (fm == nil || fm.Contents == nil || *fm.Contents) {
		contents := &aippt.Contents{}
		for _, c := range o.Chapters {
			contents.Items = append(contents.Items, c.Title)
		}
		items = append(items, contents)
	}
	for _, p := range o.Pages {
		items = append(items, p.Item())
	}
	for _, c := range o.Chapters {
		items = append(items, &aippt.Transition{Title: c.Title, Text: c.Text})
		for _, p := range c.Pages {
			items = append(items, p.Item())
		}
	}
	if fm == nil || fm.End == nil || *fm.End {
		items = append(items, &aippt.End{})
	}
	return items
}

// Item converts the page into the content item of its type.
func (p *Page) Item() aippt.Item {
	switch p.Type {
	case aippt.SlideTypeTextImage:
		pos := p.ImagePosition
		if pos == "" {
			pos = aippt.ImagePositionRight
		}
		return &aippt.TextImage{Title: p.Title, Text: p.body(), ImagePosition: pos, ImageDesc: p.ImageDesc}
	case aippt.SlideTypeTimeline:
		tl := &aippt.Timeline{Title: p.Title}
		for _, pt := range p.Points {
			tl.Items = append(tl.Items, aippt.TimelineEvent{Time: pt.Title, Event: pt.Text})
		}
		return tl
	case aippt.SlideTypeStatistics:
		st := &aippt.Statistics{Title: p.Title}
		for _, pt := range p.Points {
			st.Items = append(st.Items, aippt.Statistic{Value: pt.Title, Label: pt.Text})
		}
		return st
	case aippt.SlideTypeQuote:
		return &aippt.Quote{Quote: p.body(), Author: p.Author, Title: p.AuthorTitle}
	default:
		c := &aippt.Content{Title: p.Title}
		for _, pt := range p.Points {
			c.Items = append(c.Items, aippt.ContentPoint{Title: pt.Title, Text: pt.Text})
		}
		if len(c.Items) == 0 && p.Text != "" {
			c.Items = append(c.Items, aippt.ContentPoint{Text: p.Text})
		}
		return c
	}
}

// body returns the page text, or its points one per line when it has no text.
func (p *Page) body() string {
	if p.Text != "" {
		return p.Text
	}
	var lines []string
	for _, pt := range p.Points {
		if pt.Title != "" {
			lines = append(lines, pt.Title+": "+pt.Text)
			continue
		}
		lines = append(lines, pt.Text)
	}
	return strings.Join(lines, "\n")
}

// splitPoint splits "title: text" (or the fullwidth colon) into a titled point.
func splitPoint(s string) *Point {
	idx, size := -1, 0
	if i := strings.Index(s, "："); i >= 0 {
		idx, size = i, utf8.RuneLen('：')
	}
	if i := strings.Index(s, ": "); i >= 0 && (idx < 0 || i < idx) {
		idx, size = i, 1
	}
	if idx < 0 && strings.HasSuffix(s, ":") {
		idx, size = len(s)-1, 1
	}
	if idx <= 0 {
		return &Point{Text: s}
	}
	return &Point{
		Title: strings.TrimSpace(s[:idx]),
		Text:  strings.TrimSpace(s[idx+size:]),
	}
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

var convertRep = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n")

// inlineText returns the plain text of the inline children of n.
func inlineText(b []byte, n ast.Node) string {
	var buf strings.Builder
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				buf.Write(v.Segment.Value(b))
				switch {
				case v.HardLineBreak():
					buf.WriteString("\n")
				case v.SoftLineBreak():
					buf.WriteString(" ")
				}
			case *ast.String:
				buf.Write(v.Value)
			case *ast.AutoLink:
				buf.Write(v.URL(b))
			case *ast.RawHTML:
				var raw strings.Builder
				for i := 0; i < v.Segments.Len(); i++ {
					seg := v.Segments.At(i)
					raw.Write(seg.Value(b))
				}
				if s := convertRep.Replace(raw.String()); s == "\n" {
					buf.WriteString(s)
				}
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
