package aippt

import (
	"encoding/json"
	"fmt"

	"github.com/k1LoW/errors"
)

// SlideType is the declared type of a content item and of a template.
type SlideType string

const (
	SlideTypeCover      SlideType = "cover"
	SlideTypeContents   SlideType = "contents"
	SlideTypeTransition SlideType = "transition"
	SlideTypeContent    SlideType = "content"
	SlideTypeEnd        SlideType = "end"
	SlideTypeTextImage  SlideType = "text_image"
	SlideTypeComparison SlideType = "comparison"
	SlideTypeTimeline   SlideType = "timeline"
	SlideTypeStatistics SlideType = "statistics"
	SlideTypeQuote      SlideType = "quote"
)

// baseSlideTypes must have at least one template in a catalog.
var baseSlideTypes = []SlideType{
	SlideTypeCover,
	SlideTypeContents,
	SlideTypeTransition,
	SlideTypeContent,
	SlideTypeEnd,
}

// ErrUnknownSlideType is returned when a content record carries a type the engine does not know.
var ErrUnknownSlideType = errors.New("unknown slide type")

// Item is one AI-authored logical slide.
type Item interface {
	Type() SlideType
	continuation() *Continuation
}

// Continuation carries the running offset of an item produced by pagination.
type Continuation struct {
	Offset int `json:"-"`
}

func (c *Continuation) continuation() *Continuation { return c }

type Cover struct {
	Continuation
	Title string `json:"title"`
	Text  string `json:"text"`
}

type Contents struct {
	Continuation
	Items []string `json:"items"`
}

type Transition struct {
	Continuation
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ContentPoint is one titled point of a content page.
type ContentPoint struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type Content struct {
	Continuation
	Title string         `json:"title"`
	Items []ContentPoint `json:"items"`
}

// ImagePosition is the side of a text_image page the picture goes to.
type ImagePosition string

const (
	ImagePositionLeft  ImagePosition = "left"
	ImagePositionRight ImagePosition = "right"
)

type TextImage struct {
	Continuation
	Title         string        `json:"title"`
	Text          string        `json:"text"`
	ImagePosition ImagePosition `json:"imagePosition"`
	ImageDesc     string        `json:"imageDesc,omitempty"`
}

type Comparison struct {
	Continuation
	Title      string   `json:"title"`
	LeftTitle  string   `json:"leftTitle"`
	LeftItems  []string `json:"leftItems"`
	RightTitle string   `json:"rightTitle"`
	RightItems []string `json:"rightItems"`
}

// TimelineEvent is a point in time and what happened then.
type TimelineEvent struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

type Timeline struct {
	Continuation
	Title string          `json:"title"`
	Items []TimelineEvent `json:"items"`
}

// Trend is the optional direction of a statistic.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Statistic is a highlighted value with its label.
type Statistic struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Trend Trend  `json:"trend,omitempty"`
}

type Statistics struct {
	Continuation
	Title string      `json:"title"`
	Items []Statistic `json:"items"`
}

type Quote struct {
	Continuation
	Quote  string `json:"quote"`
	Author string `json:"author,omitempty"`
	Title  string `json:"title,omitempty"`
}

type End struct {
	Continuation
}

func (*Cover) Type() SlideType      { return SlideTypeCover }
func (*Contents) Type() SlideType   { return SlideTypeContents }
func (*Transition) Type() SlideType { return SlideTypeTransition }
func (*Content) Type() SlideType    { return SlideTypeContent }
func (*TextImage) Type() SlideType  { return SlideTypeTextImage }
func (*Comparison) Type() SlideType { return SlideTypeComparison }
func (*Timeline) Type() SlideType   { return SlideTypeTimeline }
func (*Statistics) Type() SlideType { return SlideTypeStatistics }
func (*Quote) Type() SlideType      { return SlideTypeQuote }
func (*End) Type() SlideType        { return SlideTypeEnd }

// OffsetOf returns the continuation offset of an item (0 when it was never split).
func OffsetOf(item Item) int {
	if item == nil {
		return 0
	}
	return item.continuation().Offset
}

// record is the wire shape of a content item.
type record struct {
	Type   SlideType       `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

func newItem(t SlideType) (Item, error) {
	switch t {
	case SlideTypeCover:
		return &Cover{}, nil
	case SlideTypeContents:
		return &Contents{}, nil
	case SlideTypeTransition:
		return &Transition{}, nil
	case SlideTypeContent:
		return &Content{}, nil
	case SlideTypeEnd:
		return &End{}, nil
	case SlideTypeTextImage:
		return &TextImage{}, nil
	case SlideTypeComparison:
		return &Comparison{}, nil
	case SlideTypeTimeline:
		return &Timeline{}, nil
	case SlideTypeStatistics:
		return &Statistics{}, nil
	case SlideTypeQuote:
		return &Quote{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlideType, t)
	}
}

// UnmarshalItem decodes a single content record such as
// {"type":"cover","data":{"title":"...","text":"..."}}.
func UnmarshalItem(b []byte) (_ Item, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content record: %w", err)
	}
	item, err := newItem(r.Type)
	if err != nil {
		return nil, err
	}
	if len(r.Data) > 0 && string(r.Data) != "null" {
		if err := json.Unmarshal(r.Data, item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s data: %w", r.Type, err)
		}
	}
	item.continuation().Offset = r.Offset
	return item, nil
}

// MarshalItem encodes an item into its wire record.
func MarshalItem(item Item) (_ []byte, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	if item == nil {
		return nil, fmt.Errorf("item is nil")
	}
	r := record{
		Type:   item.Type(),
		Offset: item.continuation().Offset,
	}
	if _, ok := item.(*End); !ok {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", item.Type(), err)
		}
		r.Data = data
	}
	return json.Marshal(r)
}

// Items is an ordered list of content items with a JSON array wire form.
type Items []Item

func (items Items) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := MarshalItem(item)
		if err != nil {
			return nil, err
		}
		raws = append(raws, b)
	}
	return json.Marshal(raws)
}

func (items *Items) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return fmt.Errorf("failed to unmarshal content items: %w", err)
	}
	decoded := make(Items, 0, len(raws))
	for i, raw := range raws {
		item, err := UnmarshalItem(raw)
		if err != nil {
			return fmt.Errorf("failed to unmarshal content item %d: %w", i, err)
		}
		decoded = append(decoded, item)
	}
	*items = decoded
	return nil
}

// titleOf returns the headline of an item, used by selection rules and logs.
func titleOf(item Item) string {
	switch v := item.(type) {
	case *Cover:
		return v.Title
	case *Transition:
		return v.Title
	case *Content:
		return v.Title
	case *TextImage:
		return v.Title
	case *Comparison:
		return v.Title
	case *Timeline:
		return v.Title
	case *Statistics:
		return v.Title
	case *Quote:
		return v.Quote
	default:
		return ""
	}
}

// countOf returns the number of list entries an item carries.
func countOf(item Item) int {
	switch v := item.(type) {
	case *Contents:
		return len(v.Items)
	case *Content:
		return len(v.Items)
	case *Comparison:
		return 2
	case *Timeline:
		return len(v.Items)
	case *Statistics:
		return len(v.Items)
	default:
		return 0
	}
}
