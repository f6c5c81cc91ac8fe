package aippt

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/k1LoW/errors"
)

// ElementKind is the kind of a template element.
type ElementKind string

const (
	ElementKindText  ElementKind = "text"
	ElementKindShape ElementKind = "shape"
	ElementKindImage ElementKind = "image"
)

// TextType is the semantic tag of a text-bearing placeholder.
type TextType string

const (
	TextTypeTitle       TextType = "title"
	TextTypeSubtitle    TextType = "subtitle"
	TextTypeContent     TextType = "content"
	TextTypeItem        TextType = "item"
	TextTypeItemTitle   TextType = "itemTitle"
	TextTypeItemNumber  TextType = "itemNumber"
	TextTypePartNumber  TextType = "partNumber"
	TextTypeHeader      TextType = "header"
	TextTypeFooter      TextType = "footer"
	TextTypeNotes       TextType = "notes"
	TextTypeLeftTitle   TextType = "leftTitle"
	TextTypeRightTitle  TextType = "rightTitle"
	TextTypeLeftItem    TextType = "leftItem"
	TextTypeRightItem   TextType = "rightItem"
	TextTypeTimeLabel   TextType = "timeLabel"
	TextTypeStatValue   TextType = "statValue"
	TextTypeStatLabel   TextType = "statLabel"
	TextTypeQuote       TextType = "quote"
	TextTypeAuthor      TextType = "author"
	TextTypeAuthorTitle TextType = "authorTitle"
)

// StyledText is the text payload of a text or shape element.
type StyledText struct {
	Type       TextType
	Content    string
	LineHeight float64
}

// ClipRange is a crop rectangle as [[left, top], [right, bottom]] percentages of the source image.
type ClipRange [2][2]float64

type Clip struct {
	Range ClipRange `json:"range"`
	Shape string    `json:"shape"`
}

// Element is a template element. Only the properties the engine reads or writes are decoded,
// everything else is carried verbatim for the rendering layer.
type Element struct {
	ID      string
	Kind    ElementKind
	GroupID string
	Left    float64
	Top     float64
	Width   float64
	Height  float64

	// Text is set for text elements and for shapes carrying text.
	Text *StyledText

	Src       string
	ImageType string
	Clip      *Clip

	raw map[string]json.RawMessage
}

type elementHead struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	GroupID    string   `json:"groupId"`
	Left       float64  `json:"left"`
	Top        float64  `json:"top"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	TextType   TextType `json:"textType"`
	Content    string   `json:"content"`
	LineHeight float64  `json:"lineHeight"`
	Src        string   `json:"src"`
	ImageType  string   `json:"imageType"`
	Clip       *Clip    `json:"clip"`
	Text       *struct {
		Type    TextType `json:"type"`
		Content string   `json:"content"`
	} `json:"text"`
}

func (e *Element) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal element: %w", err)
	}
	var h elementHead
	if err := json.Unmarshal(b, &h); err != nil {
		return fmt.Errorf("failed to unmarshal element: %w", err)
	}
	*e = Element{
		ID:      h.ID,
		Kind:    ElementKind(h.Type),
		GroupID: h.GroupID,
		Left:    h.Left,
		Top:     h.Top,
		Width:   h.Width,
		Height:  h.Height,
		raw:     raw,
	}
	switch e.Kind {
	case ElementKindText:
		e.Text = &StyledText{
			Type:       h.TextType,
			Content:    h.Content,
			LineHeight: h.LineHeight,
		}
	case ElementKindShape:
		if h.Text != nil {
			e.Text = &StyledText{
				Type:    h.Text.Type,
				Content: h.Text.Content,
			}
		}
	case ElementKindImage:
		e.Src = h.Src
		e.ImageType = h.ImageType
		e.Clip = h.Clip
	}
	return nil
}

func (e *Element) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.raw)+8)
	for k, v := range e.raw {
		out[k] = v
	}
	set := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal element property %s: %w", key, err)
		}
		out[key] = b
		return nil
	}
	props := map[string]any{
		"id":     e.ID,
		"type":   e.Kind,
		"left":   e.Left,
		"top":    e.Top,
		"width":  e.Width,
		"height": e.Height,
	}
	if e.GroupID != "" {
		props["groupId"] = e.GroupID
	}
	switch e.Kind {
	case ElementKindText:
		if e.Text != nil {
			props["content"] = e.Text.Content
			if e.Text.Type != "" {
				props["textType"] = e.Text.Type
			}
			if e.Text.LineHeight != 0 {
				props["lineHeight"] = e.Text.LineHeight
			}
		}
	case ElementKindShape:
		if e.Text != nil {
			nested := map[string]json.RawMessage{}
			if b, ok := e.raw["text"]; ok {
				if err := json.Unmarshal(b, &nested); err != nil {
					return nil, fmt.Errorf("failed to unmarshal shape text: %w", err)
				}
			}
			content, err := json.Marshal(e.Text.Content)
			if err != nil {
				return nil, err
			}
			nested["content"] = content
			if e.Text.Type != "" {
				tt, err := json.Marshal(e.Text.Type)
				if err != nil {
					return nil, err
				}
				nested["type"] = tt
			}
			props["text"] = nested
		}
	case ElementKindImage:
		props["src"] = e.Src
		if e.ImageType != "" {
			props["imageType"] = e.ImageType
		}
		if e.Clip != nil {
			props["clip"] = e.Clip
		}
	}
	for k, v := range props {
		if err := set(k, v); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// IsText reports whether the element carries a text payload tagged with t.
func (e *Element) IsText(t TextType) bool {
	return e.Text != nil && e.Text.Type == t
}

// Template is a pre-designed slide layout. An assembled slide is a Template too.
type Template struct {
	ID       string
	Type     SlideType
	Elements []*Element

	extra map[string]json.RawMessage
}

type templateHead struct {
	ID       string     `json:"id"`
	Type     SlideType  `json:"type"`
	Elements []*Element `json:"elements"`
}

func (t *Template) UnmarshalJSON(b []byte) error {
	extra := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &extra); err != nil {
		return fmt.Errorf("failed to unmarshal template: %w", err)
	}
	var h templateHead
	if err := json.Unmarshal(b, &h); err != nil {
		return fmt.Errorf("failed to unmarshal template: %w", err)
	}
	delete(extra, "id")
	delete(extra, "type")
	delete(extra, "elements")
	*t = Template{
		ID:       h.ID,
		Type:     h.Type,
		Elements: h.Elements,
		extra:    extra,
	}
	return nil
}

func (t *Template) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.extra)+3)
	for k, v := range t.extra {
		out[k] = v
	}
	out["id"] = t.ID
	out["type"] = t.Type
	elements := t.Elements
	if elements == nil {
		elements = []*Element{}
	}
	out["elements"] = elements
	return json.Marshal(out)
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() (_ *Template, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template %s: %w", t.ID, err)
	}
	cloned := &Template{}
	if err := json.Unmarshal(b, cloned); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", t.ID, err)
	}
	return cloned, nil
}

// Placeholder describes the text placeholders of one text type in a template.
type Placeholder struct {
	Type  TextType
	Count int
	// Sample is the authored text of the first placeholder, without markup.
	Sample string
}

// Placeholders returns the text placeholders of the template grouped by text type, in first-seen order.
func (t *Template) Placeholders() []Placeholder {
	var ps []Placeholder
	for _, el := range t.Elements {
		if el.Text == nil || el.Text.Type == "" {
			continue
		}
		i := slices.IndexFunc(ps, func(p Placeholder) bool { return p.Type == el.Text.Type })
		if i >= 0 {
			ps[i].Count++
			continue
		}
		ps = append(ps, Placeholder{Type: el.Text.Type, Count: 1, Sample: plainText(el.Text.Content)})
	}
	return ps
}

// ImageCount returns the number of image elements.
func (t *Template) ImageCount() int {
	n := 0
	for _, el := range t.Elements {
		if el.Kind == ElementKindImage {
			n++
		}
	}
	return n
}

// countText returns the number of placeholders tagged with tt.
func (t *Template) countText(tt TextType) int {
	n := 0
	for _, el := range t.Elements {
		if el.IsText(tt) {
			n++
		}
	}
	return n
}

func (t *Template) hasText(tt TextType) bool {
	return t.countText(tt) > 0
}

// Slides is the output of an assembly run.
type Slides []*Template

// Catalog is an immutable set of templates partitioned by slide type.
type Catalog struct {
	templates []*Template
	byType    map[SlideType][]*Template
}

// NewCatalog builds a catalog from templates in their authored order.
func NewCatalog(templates []*Template) *Catalog {
	c := &Catalog{
		templates: templates,
		byType:    map[SlideType][]*Template{},
	}
	for _, t := range templates {
		c.byType[t.Type] = append(c.byType[t.Type], t)
	}
	return c
}

// LoadCatalog reads a template catalog from a JSON file.
func LoadCatalog(path string) (_ *Catalog, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(b)
}

// ParseCatalog parses either a JSON array of templates or an object with a "slides" array.
func ParseCatalog(b []byte) (_ *Catalog, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	var templates []*Template
	if err := json.Unmarshal(b, &templates); err != nil {
		var wrapped struct {
			Slides []*Template `json:"slides"`
		}
		if err2 := json.Unmarshal(b, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		templates = wrapped.Slides
	}
	return NewCatalog(templates), nil
}

// ByType returns the templates declared for st.
func (c *Catalog) ByType(st SlideType) []*Template {
	return c.byType[st]
}

// Types returns the slide types present in the catalog, in first-seen order.
func (c *Catalog) Types() []SlideType {
	var types []SlideType
	for _, t := range c.templates {
		if !slices.Contains(types, t.Type) {
			types = append(types, t.Type)
		}
	}
	return types
}

// Templates returns every template in authored order.
func (c *Catalog) Templates() []*Template {
	return c.templates
}

// Find returns the template of type st with the given id.
func (c *Catalog) Find(st SlideType, id string) (*Template, bool) {
	for _, t := range c.byType[st] {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Validate reports a missing base template pool as ErrEmptyTemplatePool.
func (c *Catalog) Validate() error {
	for _, st := range baseSlideTypes {
		if len(c.byType[st]) == 0 {
			return errors.WithStack(fmt.Errorf("%w: %s", ErrEmptyTemplatePool, st))
		}
	}
	return nil
}
