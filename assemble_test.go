package aippt

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/k1LoW/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func withTemplates(extra ...*Template) []*Template {
	return append(baseTemplates(), extra...)
}

func build(t *testing.T, a *Assembler, items []Item, images []PoolImage) (Slides, *Report) {
	t.Helper()
	slides, report, err := a.Build(context.Background(), items, images)
	if err != nil {
		t.Fatal(err)
	}
	return slides, report
}

func singleTemplate(id string, st SlideType) *Template {
	return tpl(id, st,
		textEl(id+"-title", TextTypeTitle, "Title", 50, 20, 900, 60),
		textEl(id+"-content", TextTypeContent, "Body", 50, 100, 900, 300),
	)
}

func TestBuildPaginatesContent(t *testing.T) {
	templates := withTemplates(listTemplate("content-4", SlideTypeContent, 4))
	a := newTestAssembler(t, templates)
	item := &Content{Title: "Nine", Items: points(9)}
	slides, report := build(t, a, []Item{item}, nil)
	if len(slides) != 3 {
		t.Fatalf("got %d slides, want 3", len(slides))
	}
	for i, slide := range slides {
		wantNums := []string{strconv.Itoa(i*3 + 1), strconv.Itoa(i*3 + 2), strconv.Itoa(i*3 + 3)}
		if diff := cmp.Diff(wantNums, textsOf(slide, TextTypeItemNumber)); diff != "" {
			t.Errorf("slide %d numbers mismatch (-want +got):\n%s", i, diff)
		}
		var wantItems, wantTitles []string
		for _, p := range item.Items[i*3 : i*3+3] {
			wantTitles = append(wantTitles, p.Title)
			wantItems = append(wantItems, p.Text)
		}
		if diff := cmp.Diff(wantTitles, textsOf(slide, TextTypeItemTitle)); diff != "" {
			t.Errorf("slide %d titles mismatch (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(wantItems, textsOf(slide, TextTypeItem)); diff != "" {
			t.Errorf("slide %d items mismatch (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff([]string{"Nine"}, textsOf(slide, TextTypeTitle)); diff != "" {
			t.Errorf("slide %d title mismatch (-want +got):\n%s", i, diff)
		}
		if got := slide.Elements[1].ID; !strings.HasPrefix(got, "content-3-") {
			t.Errorf("slide %d built from %s, want the 3 item template", i, got)
		}
	}
	if report.Items != 1 || report.Slides != 3 {
		t.Errorf("report = %+v, want 1 item and 3 slides", report)
	}
	if len(item.Items) != 9 {
		t.Error("Build() mutated its input")
	}
}

func TestBuildTimelineFallsBackToContent(t *testing.T) {
	templates := withTemplates(listTemplate("content-4", SlideTypeContent, 4))
	a := newTestAssembler(t, templates)
	item := &Timeline{
		Title: "History",
		Items: []TimelineEvent{
			{Time: "2019", Event: "founded"},
			{Time: "2020", Event: "first product"},
			{Time: "2022", Event: "series A"},
			{Time: "2025", Event: "IPO"},
		},
	}
	slides, report := build(t, a, []Item{item}, nil)
	if len(slides) != 1 {
		t.Fatalf("got %d slides, want 1", len(slides))
	}
	if diff := cmp.Diff([]string{"2019", "2020", "2022", "2025"}, textsOf(slides[0], TextTypeItemTitle)); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"founded", "first product", "series A", "IPO"}, textsOf(slides[0], TextTypeItem)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if report.Fallbacks[SlideTypeTimeline] != 1 {
		t.Errorf("Fallbacks = %v, want one timeline fallback", report.Fallbacks)
	}
	if report.Dropped[SlideTypeTimeline] != 0 {
		t.Errorf("Dropped = %v, want none", report.Dropped)
	}
}

func TestBuildTimelineWithTimeLabels(t *testing.T) {
	timeline := tpl("timeline-2", SlideTypeTimeline,
		textEl("tl-title", TextTypeTitle, "Title", 50, 20, 900, 60),
		inGroup("a", textEl("tl-time-a", TextTypeTimeLabel, "2000", 50, 200, 200, 40)),
		inGroup("a", textEl("tl-item-a", TextTypeItem, "Event", 50, 260, 200, 80)),
		inGroup("b", textEl("tl-time-b", TextTypeTimeLabel, "2000", 400, 200, 200, 40)),
		inGroup("b", textEl("tl-item-b", TextTypeItem, "Event", 400, 260, 200, 80)),
	)
	a := newTestAssembler(t, withTemplates(timeline))
	slides, report := build(t, a, []Item{&Timeline{
		Title: "History",
		Items: []TimelineEvent{{Time: "1990", Event: "a"}, {Time: "2000", Event: "b"}},
	}}, nil)
	if diff := cmp.Diff([]string{"1990", "2000"}, textsOf(slides[0], TextTypeTimeLabel)); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, textsOf(slides[0], TextTypeItem)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if len(report.Fallbacks) != 0 {
		t.Errorf("Fallbacks = %v, want none", report.Fallbacks)
	}
}

func TestBuildFillsImagesOnce(t *testing.T) {
	textImage := tpl("text-image-1", SlideTypeTextImage,
		textEl("ti-title", TextTypeTitle, "Title", 50, 20, 400, 60),
		textEl("ti-content", TextTypeContent, "Body", 50, 100, 400, 300),
		imageEl("ti-img", 500, 100, 400, 200),
		&Element{ID: "ti-logo", Kind: ElementKindImage, Width: 50, Height: 50, Src: "logo.png"},
	)
	a := newTestAssembler(t, withTemplates(textImage))
	images := []PoolImage{
		{ID: "square", Src: "s.png", Width: 100, Height: 100},
		{ID: "landscape", Src: "l.png", Width: 160, Height: 90},
	}
	items := []Item{
		&TextImage{Title: "a", Text: "x", ImagePosition: ImagePositionRight},
		&TextImage{Title: "b", Text: "y", ImagePosition: ImagePositionLeft},
		&TextImage{Title: "c", Text: "z"},
	}
	slides, report := build(t, a, items, images)

	srcOf := func(slide *Template, id string) (*Element, bool) {
		for _, el := range slide.Elements {
			if el.ID == id {
				return el, true
			}
		}
		return nil, false
	}
	var got []string
	for _, slide := range slides {
		el, ok := srcOf(slide, "ti-img")
		if !ok {
			t.Fatal("image placeholder missing")
		}
		got = append(got, el.Src)
		logo, _ := srcOf(slide, "ti-logo")
		if logo.Src != "logo.png" || logo.Clip != nil {
			t.Errorf("untyped image was changed: %+v", logo)
		}
	}
	if diff := cmp.Diff([]string{"l.png", "s.png", "placeholder.png"}, got); diff != "" {
		t.Errorf("image sources mismatch (-want +got):\n%s", diff)
	}
	first, _ := srcOf(slides[0], "ti-img")
	if first.Clip == nil || first.Clip.Shape != "rect" {
		t.Errorf("clip = %+v, want a rect clip", first.Clip)
	}
	if report.PoolExhausted != 1 {
		t.Errorf("PoolExhausted = %d, want 1", report.PoolExhausted)
	}
}

func TestBuildEmptyPoolIsNotExhaustion(t *testing.T) {
	textImage := tpl("text-image-1", SlideTypeTextImage,
		textEl("ti-title", TextTypeTitle, "Title", 50, 20, 400, 60),
		imageEl("ti-img", 500, 100, 400, 200),
	)
	a := newTestAssembler(t, withTemplates(textImage))
	_, report := build(t, a, []Item{&TextImage{Title: "a"}}, nil)
	if report.PoolExhausted != 0 {
		t.Errorf("PoolExhausted = %d, want 0", report.PoolExhausted)
	}
}

func TestBuildTransitions(t *testing.T) {
	other := tpl("transition-2", SlideTypeTransition,
		textEl("transition2-title", TextTypeTitle, "Part title", 50, 200, 900, 80),
		textEl("transition2-num", TextTypePartNumber, "01", 50, 100, 100, 80),
	)
	a := newTestAssembler(t, withTemplates(other))
	items := []Item{
		&Transition{Title: "One"},
		&Content{Title: "c", Items: points(2)},
		&Transition{Title: "Two"},
		&Transition{Title: "Three"},
	}
	slides, _ := build(t, a, items, nil)
	transitions := []*Template{slides[0], slides[2], slides[3]}
	first := transitions[0].Elements[0].ID
	for i, slide := range transitions {
		if got := slide.Elements[0].ID; got != first {
			t.Errorf("transition %d built from element %s, want %s", i, got, first)
		}
	}
	var nums []string
	for _, slide := range transitions {
		nums = append(nums, textsOf(slide, TextTypePartNumber)...)
	}
	if diff := cmp.Diff([]string{"01", "02", "03"}, nums); diff != "" {
		t.Errorf("part numbers mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildContents(t *testing.T) {
	a := newTestAssembler(t, baseTemplates())
	slides, _ := build(t, a, []Item{&Contents{Items: []string{"Intro", "Body", "Outro"}}}, nil)
	if diff := cmp.Diff([]string{"Intro", "Body", "Outro"}, textsOf(slides[0], TextTypeItem)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, textsOf(slides[0], TextTypeItemNumber)); diff != "" {
		t.Errorf("numbers mismatch (-want +got):\n%s", diff)
	}
	for _, el := range slides[0].Elements {
		if el.GroupID == "contents-4-g4" {
			t.Errorf("surplus group element %s was kept", el.ID)
		}
	}
}

func TestBuildCoverAndEnd(t *testing.T) {
	a := newTestAssembler(t, baseTemplates())
	slides, _ := build(t, a, []Item{&Cover{Title: "Annual report", Text: "2026"}, &End{}}, nil)
	if diff := cmp.Diff([]string{"Annual report"}, textsOf(slides[0], TextTypeTitle)); diff != "" {
		t.Errorf("cover title mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2026"}, textsOf(slides[0], TextTypeContent)); diff != "" {
		t.Errorf("cover text mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Thanks"}, textsOf(slides[1], TextTypeTitle)); diff != "" {
		t.Errorf("end title mismatch (-want +got):\n%s", diff)
	}
	if slides[0].ID == slides[1].ID || slides[0].ID == "cover-1" {
		t.Errorf("slide ids = %s, %s, want fresh unique ids", slides[0].ID, slides[1].ID)
	}
}

func TestBuildQuote(t *testing.T) {
	t.Run("falls back to transition", func(t *testing.T) {
		a := newTestAssembler(t, baseTemplates())
		slides, report := build(t, a, []Item{&Quote{Quote: "Stay hungry", Author: "Jobs", Title: "CEO"}}, nil)
		if diff := cmp.Diff([]string{`"Stay hungry"`}, textsOf(slides[0], TextTypeTitle)); diff != "" {
			t.Errorf("quote mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"—— Jobs · CEO"}, textsOf(slides[0], TextTypeContent)); diff != "" {
			t.Errorf("attribution mismatch (-want +got):\n%s", diff)
		}
		if report.Fallbacks[SlideTypeQuote] != 1 {
			t.Errorf("Fallbacks = %v, want one quote fallback", report.Fallbacks)
		}
	})
	t.Run("quote template", func(t *testing.T) {
		quote := tpl("quote-1", SlideTypeQuote,
			textEl("q", TextTypeQuote, "Quote", 50, 100, 900, 200),
			textEl("q-author", TextTypeAuthor, "Author", 50, 320, 400, 40),
			textEl("q-title", TextTypeAuthorTitle, "Role", 50, 370, 400, 40),
		)
		a := newTestAssembler(t, withTemplates(quote))
		slides, report := build(t, a, []Item{&Quote{Quote: "Stay hungry", Author: "Jobs", Title: "CEO"}}, nil)
		if diff := cmp.Diff([]string{`"Stay hungry"`}, textsOf(slides[0], TextTypeQuote)); diff != "" {
			t.Errorf("quote mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"Jobs"}, textsOf(slides[0], TextTypeAuthor)); diff != "" {
			t.Errorf("author mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"CEO"}, textsOf(slides[0], TextTypeAuthorTitle)); diff != "" {
			t.Errorf("author title mismatch (-want +got):\n%s", diff)
		}
		if len(report.Fallbacks) != 0 {
			t.Errorf("Fallbacks = %v, want none", report.Fallbacks)
		}
	})
}

func TestBuildTextImageFallsBackToContent(t *testing.T) {
	a := newTestAssembler(t, withTemplates(singleTemplate("content-1", SlideTypeContent)))
	slides, report := build(t, a, []Item{&TextImage{Title: "Product", Text: "Fast and small"}}, nil)
	if got := slides[0].Elements[0].ID; got != "content-1-title" {
		t.Errorf("built from %s, want the single point content template", got)
	}
	if diff := cmp.Diff([]string{"Fast and small"}, textsOf(slides[0], TextTypeContent)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
	if report.Fallbacks[SlideTypeTextImage] != 1 {
		t.Errorf("Fallbacks = %v, want one text_image fallback", report.Fallbacks)
	}
}

func TestBuildSinglePointContent(t *testing.T) {
	a := newTestAssembler(t, withTemplates(singleTemplate("content-1", SlideTypeContent)))
	slides, _ := build(t, a, []Item{&Content{Title: "Why", Items: []ContentPoint{{Title: "t", Text: "Because"}}}}, nil)
	if diff := cmp.Diff([]string{"Because"}, textsOf(slides[0], TextTypeContent)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Why"}, textsOf(slides[0], TextTypeTitle)); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildComparison(t *testing.T) {
	item := &Comparison{
		Title:      "Plans",
		LeftTitle:  "Basic",
		LeftItems:  []string{"cheap", "slow"},
		RightTitle: "Pro",
		RightItems: []string{"fast"},
	}
	t.Run("comparison template", func(t *testing.T) {
		comparison := tpl("comparison-1", SlideTypeComparison,
			textEl("cmp-title", TextTypeTitle, "Title", 50, 20, 900, 60),
			textEl("cmp-lt", TextTypeLeftTitle, "Left", 50, 100, 400, 40),
			textEl("cmp-rt", TextTypeRightTitle, "Right", 500, 100, 400, 40),
			// staggered: cmp-l1 is higher but reads after cmp-l2, column items follow top only
			textEl("cmp-l1", TextTypeLeftItem, "L", 250, 180, 200, 60),
			textEl("cmp-l2", TextTypeLeftItem, "L", 50, 200, 200, 60),
			textEl("cmp-r1", TextTypeRightItem, "R", 500, 170, 400, 60),
			textEl("cmp-r2", TextTypeRightItem, "R", 500, 250, 400, 60),
		)
		a := newTestAssembler(t, withTemplates(comparison))
		slides, report := build(t, a, []Item{item}, nil)
		slide := slides[0]
		for tt, want := range map[TextType][]string{
			TextTypeTitle:      {"Plans"},
			TextTypeLeftTitle:  {"Basic"},
			TextTypeRightTitle: {"Pro"},
			TextTypeRightItem:  {"fast"},
		} {
			if diff := cmp.Diff(want, textsOf(slide, tt)); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt, diff)
			}
		}
		byID := map[string]string{}
		for _, el := range slide.Elements {
			if el.Text != nil {
				byID[el.ID] = plainText(el.Text.Content)
			}
		}
		if byID["cmp-l1"] != "cheap" || byID["cmp-l2"] != "slow" {
			t.Errorf("left items = %q, %q, want cheap, slow", byID["cmp-l1"], byID["cmp-l2"])
		}
		if _, ok := byID["cmp-r2"]; ok {
			t.Error("unused right item was kept")
		}
		if len(report.Fallbacks) != 0 {
			t.Errorf("Fallbacks = %v, want none", report.Fallbacks)
		}
	})
	t.Run("content fallback", func(t *testing.T) {
		a := newTestAssembler(t, baseTemplates())
		slides, report := build(t, a, []Item{item}, nil)
		if diff := cmp.Diff([]string{"Basic", "Pro"}, textsOf(slides[0], TextTypeItemTitle)); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"cheap；slow", "fast"}, textsOf(slides[0], TextTypeItem)); diff != "" {
			t.Errorf("items mismatch (-want +got):\n%s", diff)
		}
		if report.Fallbacks[SlideTypeComparison] != 1 {
			t.Errorf("Fallbacks = %v, want one comparison fallback", report.Fallbacks)
		}
	})
}

func TestBuildStatistics(t *testing.T) {
	item := &Statistics{
		Title: "KPI",
		Items: []Statistic{
			{Value: "98%", Label: "uptime", Trend: TrendUp},
			{Value: "1.2s", Label: "latency"},
		},
	}
	t.Run("statistics template", func(t *testing.T) {
		stats := tpl("statistics-2", SlideTypeStatistics,
			textEl("st-title", TextTypeTitle, "Title", 50, 20, 900, 60),
			inGroup("a", textEl("st-v1", TextTypeStatValue, "0", 50, 200, 300, 80)),
			inGroup("a", textEl("st-l1", TextTypeStatLabel, "Label", 50, 300, 300, 40)),
			inGroup("b", textEl("st-v2", TextTypeStatValue, "0", 500, 200, 300, 80)),
			inGroup("b", textEl("st-l2", TextTypeStatLabel, "Label", 500, 300, 300, 40)),
		)
		a := newTestAssembler(t, withTemplates(stats))
		slides, _ := build(t, a, []Item{item}, nil)
		if diff := cmp.Diff([]string{"98%", "1.2s"}, textsOf(slides[0], TextTypeStatValue)); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"uptime", "latency"}, textsOf(slides[0], TextTypeStatLabel)); diff != "" {
			t.Errorf("labels mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("content fallback", func(t *testing.T) {
		a := newTestAssembler(t, baseTemplates())
		slides, report := build(t, a, []Item{item}, nil)
		if diff := cmp.Diff([]string{"98%", "1.2s"}, textsOf(slides[0], TextTypeItemTitle)); diff != "" {
			t.Errorf("values mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"uptime", "latency"}, textsOf(slides[0], TextTypeItem)); diff != "" {
			t.Errorf("labels mismatch (-want +got):\n%s", diff)
		}
		if report.Fallbacks[SlideTypeStatistics] != 1 {
			t.Errorf("Fallbacks = %v, want one statistics fallback", report.Fallbacks)
		}
	})
}

func TestBuildCountsDroppedContent(t *testing.T) {
	a := newTestAssembler(t, baseTemplates())
	_, report := build(t, a, []Item{&Content{Title: "Four", Items: points(4)}}, nil)
	// one title and one text have no placeholder in the 3 item template
	if got := report.Dropped[SlideTypeContent]; got != 2 {
		t.Errorf("Dropped = %v, want 2 content entries", report.Dropped)
	}
}

func TestBuildIgnoresEmptyContentWithoutPlaceholder(t *testing.T) {
	var templates []*Template
	for _, tp := range baseTemplates() {
		if tp.Type != SlideTypeContent {
			templates = append(templates, tp)
		}
	}
	templates = append(templates, tpl("items-3", SlideTypeContent,
		textEl("items-title", TextTypeTitle, "Title", 50, 20, 900, 60),
		inGroup("g1", textEl("items-1", TextTypeItem, "Item", 50, 100, 900, 60)),
		inGroup("g2", textEl("items-2", TextTypeItem, "Item", 50, 200, 900, 60)),
		inGroup("g3", textEl("items-3", TextTypeItem, "Item", 50, 300, 900, 60)),
	))
	a := newTestAssembler(t, templates)
	tests := []struct {
		name  string
		items []ContentPoint
		want  int
	}{
		{"untitled points", []ContentPoint{{Text: "a"}, {Text: "b"}, {Text: "c"}}, 0},
		{"one titled point", []ContentPoint{{Title: "t", Text: "a"}, {Text: "b"}, {Text: "c"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slides, report := build(t, a, []Item{&Content{Title: "Plan", Items: tt.items}}, nil)
			if got := report.Dropped[SlideTypeContent]; got != tt.want {
				t.Errorf("Dropped = %v, want %d content entries", report.Dropped, tt.want)
			}
			if diff := cmp.Diff([]string{"a", "b", "c"}, textsOf(slides[0], TextTypeItem)); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildCountsOverflow(t *testing.T) {
	a := newTestAssembler(t, baseTemplates())
	slides, report := build(t, a, []Item{&Cover{Title: strings.Repeat("long ", 100)}}, nil)
	if report.Overflows == 0 {
		t.Error("Overflows = 0, want the oversized title counted")
	}
	for _, el := range slides[0].Elements {
		if el.IsText(TextTypeTitle) {
			if size, _ := fontInfo(el.Text.Content); size != minFontSize {
				t.Errorf("font size = %v, want %v", size, minFontSize)
			}
			if el.Text.LineHeight != 1.2 {
				t.Errorf("line height = %v, want 1.2 for small text", el.Text.LineHeight)
			}
		}
	}
}

func TestBuildRules(t *testing.T) {
	cover2 := tpl("cover-2", SlideTypeCover,
		textEl("cover2-title", TextTypeTitle, "Cover title", 50, 200, 900, 80),
	)
	items := []Item{&Cover{Title: "c"}, &Content{Title: "x", Items: points(2)}, &End{}}
	tests := []struct {
		name        string
		rules       []Rule
		wantSlides  int
		wantSkipped int
		wantCover   string
	}{
		{
			name:       "force a template",
			rules:      []Rule{{If: `slideType == "cover"`, Template: "cover-2"}},
			wantSlides: 3,
			wantCover:  "cover2-title",
		},
		{
			name:        "skip an item",
			rules:       []Rule{{If: `index == 2`, Skip: true}, {If: `slideType == "cover"`, Template: "cover-2"}},
			wantSlides:  2,
			wantSkipped: 1,
			wantCover:   "cover2-title",
		},
		{
			name:       "first match wins",
			rules:      []Rule{{If: `count >= 0`, Template: "cover-1"}, {If: `slideType == "cover"`, Template: "cover-2"}},
			wantSlides: 3,
			wantCover:  "cover-title",
		},
		{
			name:       "unknown template is ignored",
			rules:      []Rule{{If: `title == "c"`, Template: "cover-9"}},
			wantSlides: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssembler(t, withTemplates(cover2), WithRules(tt.rules))
			slides, report := build(t, a, items, nil)
			if len(slides) != tt.wantSlides {
				t.Errorf("got %d slides, want %d", len(slides), tt.wantSlides)
			}
			if report.Skipped != tt.wantSkipped {
				t.Errorf("Skipped = %d, want %d", report.Skipped, tt.wantSkipped)
			}
			if tt.wantCover != "" {
				if got := slides[0].Elements[0].ID; got != tt.wantCover {
					t.Errorf("cover built from element %s, want %s", got, tt.wantCover)
				}
			}
		})
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"syntax error", []Rule{{If: `slideType ==`}}},
		{"not a condition", []Rule{{If: `index + 1`}}},
		{"empty condition", []Rule{{Skip: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(NewCatalog(baseTemplates()), WithRules(tt.rules)); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestBuildRequiresBasePools(t *testing.T) {
	templates := baseTemplates()[:4]
	a := newTestAssembler(t, templates)
	_, _, err := a.Build(context.Background(), []Item{&Cover{Title: "c"}}, nil)
	if !errors.Is(err, ErrEmptyTemplatePool) {
		t.Errorf("Build() error = %v, want %v", err, ErrEmptyTemplatePool)
	}
}

func TestBuildCanceled(t *testing.T) {
	a := newTestAssembler(t, baseTemplates())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := a.Build(ctx, []Item{&Cover{Title: "c"}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want %v", err, context.Canceled)
	}
}

func TestBuildIsReproducibleWithSeed(t *testing.T) {
	templates := withTemplates(listTemplate("content-3b", SlideTypeContent, 3), listTemplate("content-4", SlideTypeContent, 4))
	items := []Item{
		&Cover{Title: "c"},
		&Content{Title: "a", Items: points(3)},
		&Content{Title: "b", Items: points(7)},
		&End{},
	}
	images := []PoolImage{{ID: "a", Src: "a.png", Width: 10, Height: 10}}
	a := newTestAssembler(t, templates, WithSeed(42))
	run := func() string {
		slides, _ := build(t, a, items, images)
		b, err := json.Marshal(slides)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}
	if first, second := run(), run(); first != second {
		t.Error("two builds with the same seed differ")
	}
}

func TestSessionAdd(t *testing.T) {
	a := newTestAssembler(t, baseTemplates())
	s := a.NewSession(nil)
	if _, err := s.Add(nil); err == nil {
		t.Error("Add(nil) error = nil, want error")
	}
	added, err := s.Add(&Content{Title: "x", Items: points(5)})
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 2 {
		t.Errorf("Add() returned %d slides, want 2", len(added))
	}
	if got := len(s.Slides()); got != 2 {
		t.Errorf("Slides() = %d, want 2", got)
	}
	report := s.Report()
	report.Dropped[SlideTypeContent] = 99
	if s.Report().Dropped[SlideTypeContent] == 99 {
		t.Error("Report() shares its maps")
	}
}

func TestBuildMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newTestAssembler(t, baseTemplates(), WithRegisterer(reg))
	build(t, a, []Item{
		&Cover{Title: "c"},
		&Content{Title: "x", Items: points(6)},
		&Quote{Quote: "q"},
		&End{},
	}, nil)
	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"content slides", a.metrics.slidesAssembled.WithLabelValues(string(SlideTypeContent)), 2},
		{"quote slides", a.metrics.slidesAssembled.WithLabelValues(string(SlideTypeQuote)), 1},
		{"quote fallbacks", a.metrics.templateFallbacks.WithLabelValues(string(SlideTypeQuote)), 1},
		{"pool exhaustion", a.metrics.poolExhausted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	// a second assembler on the same registry shares the collectors
	b := newTestAssembler(t, baseTemplates(), WithRegisterer(reg))
	build(t, b, []Item{&Cover{Title: "c"}}, nil)
	if got := testutil.ToFloat64(a.metrics.slidesAssembled.WithLabelValues(string(SlideTypeCover))); got != 2 {
		t.Errorf("cover slides = %v, want 2", got)
	}
}
