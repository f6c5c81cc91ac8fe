package aippt

import (
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/k1LoW/errors"
)

// Report summarizes what an assembly session did silently.
type Report struct {
	Items  int `json:"items"`
	Slides int `json:"slides"`
	// Skipped counts items omitted by a rule.
	Skipped int `json:"skipped"`
	// Dropped counts content entries that found no placeholder, by slide type.
	Dropped map[SlideType]int `json:"dropped"`
	// Fallbacks counts slides built from a generic template, by requested slide type.
	Fallbacks     map[SlideType]int `json:"fallbacks"`
	Overflows     int               `json:"overflows"`
	PoolExhausted int               `json:"poolExhausted"`
}

// Session is the state of one deck build: the transition template, the transition counter
// and the image pool. A Session is not safe for concurrent use.
type Session struct {
	a           *Assembler
	rng         *rand.Rand
	pool        *ImagePool
	poolSize    int
	transition  *Template
	transitions int
	index       int
	slides      Slides
	report      *Report
}

// Add assembles one content item, paginating it when needed, and returns the slides it produced.
func (s *Session) Add(item Item) (_ []*Template, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	if item == nil {
		return nil, fmt.Errorf("item is nil")
	}
	index := s.index
	s.index++
	s.report.Items++
	d, err := decide(s.a.rules, item, index)
	if err != nil {
		return nil, err
	}
	if d.skip {
		s.report.Skipped++
		s.a.logger.Info("skipped item", slog.String("type", string(item.Type())), slog.Int("index", index))
		return nil, nil
	}
	var added []*Template
	for page, p := range Paginate([]Item{item}) {
		slide, err := s.assemble(p, d.template)
		if err != nil {
			return nil, err
		}
		s.slides = append(s.slides, slide.Template)
		s.report.Slides++
		s.a.metrics.slidesAssembled.WithLabelValues(string(p.Type())).Inc()
		s.a.logger.Info("assembled slide",
			slog.String("type", string(p.Type())),
			slog.String("template", slide.templateID),
			slog.Int("index", index),
			slog.Int("page", page),
			slog.Int("offset", OffsetOf(p)))
		added = append(added, slide.Template)
	}
	return added, nil
}

// Slides returns the slides assembled so far.
func (s *Session) Slides() Slides {
	return slices.Clone(s.slides)
}

// Report returns a copy of the session report.
func (s *Session) Report() *Report {
	r := *s.report
	r.Dropped = make(map[SlideType]int, len(s.report.Dropped))
	for k, v := range s.report.Dropped {
		r.Dropped[k] = v
	}
	r.Fallbacks = make(map[SlideType]int, len(s.report.Fallbacks))
	for k, v := range s.report.Fallbacks {
		r.Fallbacks[k] = v
	}
	return &r
}

// Pool returns the images not consumed yet.
func (s *Session) Pool() []PoolImage {
	return s.pool.Images()
}

type assembled struct {
	*Template
	templateID string
}

// pick chooses a template of type st, falling back to the pool of fallback when st has none.
// With a tag the selector narrows the pool to the templates best fitting n entries.
func (s *Session) pick(st, fallback SlideType, n int, tag TextType, forced string) (_ *Template, fellBack bool, err error) {
	pool := s.a.catalog.ByType(st)
	if len(pool) == 0 && fallback != "" {
		pool = s.a.catalog.ByType(fallback)
		fellBack = true
	}
	if len(pool) == 0 {
		if fallback != "" {
			return nil, false, fmt.Errorf("%w: %s (fallback %s)", ErrEmptyTemplatePool, st, fallback)
		}
		return nil, false, fmt.Errorf("%w: %s", ErrEmptyTemplatePool, st)
	}
	if fellBack {
		s.report.Fallbacks[st]++
		s.a.metrics.templateFallbacks.WithLabelValues(string(st)).Inc()
		s.a.logger.Info("fell back to generic template", slog.String("type", string(st)), slog.String("fallback", string(fallback)))
	}
	if forced != "" {
		for _, t := range pool {
			if t.ID == forced {
				return t, fellBack, nil
			}
		}
		s.a.logger.Warn("ignored rule template", slog.String("type", string(st)), slog.String("template", forced))
	}
	candidates := pool
	if tag != "" {
		candidates = selectTemplates(pool, n, tag)
	}
	return candidates[s.rng.Intn(len(candidates))], fellBack, nil
}

// hasTextIn reports whether any template of pool carries a tt placeholder.
func hasTextIn(pool []*Template, tt TextType) bool {
	return slices.ContainsFunc(pool, func(t *Template) bool { return t.hasText(tt) })
}

func (s *Session) poolFor(st, fallback SlideType) []*Template {
	if pool := s.a.catalog.ByType(st); len(pool) > 0 {
		return pool
	}
	return s.a.catalog.ByType(fallback)
}

// assemble builds one slide from a page of content.
func (s *Session) assemble(item Item, forced string) (assembled, error) {
	var (
		tpl   *Template
		slots []slot
		err   error
	)
	switch v := item.(type) {
	case *Cover:
		if tpl, _, err = s.pick(SlideTypeCover, "", 0, "", forced); err != nil {
			return assembled{}, err
		}
		slots = []slot{
			textSlot(TextTypeTitle, v.Title, 1),
			textSlot(TextTypeContent, v.Text, 3),
		}
	case *Contents:
		if tpl, _, err = s.pick(SlideTypeContents, "", len(v.Items), TextTypeItem, forced); err != nil {
			return assembled{}, err
		}
		slots = []slot{
			listSlot(TextTypeItem, v.Items, 1, true),
			numberSlot(TextTypeItemNumber, len(v.Items), v.Offset),
		}
	case *Transition:
		if s.transition == nil {
			if tpl, _, err = s.pick(SlideTypeTransition, "", 0, "", forced); err != nil {
				return assembled{}, err
			}
			s.transition = tpl
		}
		tpl = s.transition
		s.transitions++
		slots = []slot{
			textSlot(TextTypeTitle, v.Title, 1),
			textSlot(TextTypeContent, v.Text, 3),
			{tag: TextTypePartNumber, values: []string{fmt.Sprint(s.transitions)}, maxLines: 1, pad: true},
		}
	case *Content:
		if tpl, _, err = s.pick(SlideTypeContent, "", len(v.Items), TextTypeItem, forced); err != nil {
			return assembled{}, err
		}
		slots = contentSlots(tpl, v)
	case *TextImage:
		tag := TextType("")
		if len(s.a.catalog.ByType(SlideTypeTextImage)) == 0 {
			tag = TextTypeItem
		}
		if tpl, _, err = s.pick(SlideTypeTextImage, SlideTypeContent, 1, tag, forced); err != nil {
			return assembled{}, err
		}
		slots = []slot{
			textSlot(TextTypeTitle, v.Title, 1),
			textSlot(TextTypeContent, v.Text, 6),
		}
	case *Comparison:
		if tpl, _, err = s.pick(SlideTypeComparison, SlideTypeContent, 0, "", forced); err != nil {
			return assembled{}, err
		}
		slots = comparisonSlots(tpl, v)
	case *Timeline:
		tag := TextTypeItem
		if hasTextIn(s.poolFor(SlideTypeTimeline, SlideTypeContent), TextTypeTimeLabel) {
			tag = TextTypeTimeLabel
		}
		if tpl, _, err = s.pick(SlideTypeTimeline, SlideTypeContent, len(v.Items), tag, forced); err != nil {
			return assembled{}, err
		}
		slots = timelineSlots(v)
	case *Statistics:
		tag := TextTypeItem
		if hasTextIn(s.poolFor(SlideTypeStatistics, SlideTypeContent), TextTypeStatValue) {
			tag = TextTypeStatValue
		}
		if tpl, _, err = s.pick(SlideTypeStatistics, SlideTypeContent, len(v.Items), tag, forced); err != nil {
			return assembled{}, err
		}
		slots = statisticsSlots(v)
	case *Quote:
		if tpl, _, err = s.pick(SlideTypeQuote, SlideTypeTransition, 0, "", forced); err != nil {
			return assembled{}, err
		}
		slots = quoteSlots(tpl, v)
	case *End:
		if tpl, _, err = s.pick(SlideTypeEnd, "", 0, "", forced); err != nil {
			return assembled{}, err
		}
	default:
		return assembled{}, fmt.Errorf("%w: %T", ErrUnknownSlideType, item)
	}
	slide, err := s.populate(tpl, item.Type(), slots)
	if err != nil {
		return assembled{}, err
	}
	return assembled{Template: slide, templateID: tpl.ID}, nil
}

func contentSlots(tpl *Template, v *Content) []slot {
	var slots []slot
	if len(v.Items) == 1 && tpl.hasText(TextTypeContent) && !tpl.hasText(TextTypeItem) {
		slots = append(slots, textSlot(TextTypeContent, v.Items[0].Text, 6))
	} else {
		titles := make([]string, len(v.Items))
		texts := make([]string, len(v.Items))
		for i, p := range v.Items {
			titles[i] = p.Title
			texts[i] = p.Text
		}
		slots = append(slots,
			listSlot(TextTypeItemTitle, titles, 1, true),
			listSlot(TextTypeItem, texts, 4, true),
			numberSlot(TextTypeItemNumber, len(v.Items), v.Offset),
		)
	}
	return append(slots, textSlot(TextTypeTitle, v.Title, 1))
}

const comparisonJoiner = "；"

func comparisonSlots(tpl *Template, v *Comparison) []slot {
	slots := []slot{textSlot(TextTypeTitle, v.Title, 1)}
	if tpl.hasText(TextTypeLeftTitle) || tpl.hasText(TextTypeRightTitle) {
		left := listSlot(TextTypeLeftItem, v.LeftItems, 2, false)
		left.order = orderTop
		right := listSlot(TextTypeRightItem, v.RightItems, 2, false)
		right.order = orderTop
		return append(slots,
			textSlot(TextTypeLeftTitle, v.LeftTitle, 1),
			textSlot(TextTypeRightTitle, v.RightTitle, 1),
			left,
			right,
		)
	}
	return append(slots,
		listSlot(TextTypeItemTitle, []string{v.LeftTitle, v.RightTitle}, 1, false),
		listSlot(TextTypeItem, []string{
			strings.Join(v.LeftItems, comparisonJoiner),
			strings.Join(v.RightItems, comparisonJoiner),
		}, 4, false),
	)
}

func timelineSlots(v *Timeline) []slot {
	times := make([]string, len(v.Items))
	events := make([]string, len(v.Items))
	for i, e := range v.Items {
		times[i] = e.Time
		events[i] = e.Event
	}
	return []slot{
		textSlot(TextTypeTitle, v.Title, 1),
		withField(listSlot(TextTypeTimeLabel, times, 1, true), "time"),
		withField(listSlot(TextTypeItemTitle, times, 1, true), "time"),
		listSlot(TextTypeItem, events, 4, true),
		numberSlot(TextTypeItemNumber, len(v.Items), 0),
	}
}

func statisticsSlots(v *Statistics) []slot {
	values := make([]string, len(v.Items))
	labels := make([]string, len(v.Items))
	for i, st := range v.Items {
		values[i] = st.Value
		labels[i] = st.Label
	}
	return []slot{
		textSlot(TextTypeTitle, v.Title, 1),
		withField(listSlot(TextTypeStatValue, values, 1, true), "value"),
		withField(listSlot(TextTypeStatLabel, labels, 2, true), "label"),
		withField(listSlot(TextTypeItemTitle, values, 1, true), "value"),
		withField(listSlot(TextTypeItem, labels, 2, true), "label"),
	}
}

func quoteSlots(tpl *Template, v *Quote) []slot {
	quoted := `"` + v.Quote + `"`
	if tpl.hasText(TextTypeQuote) {
		return []slot{
			textSlot(TextTypeQuote, quoted, 4),
			textSlot(TextTypeAuthor, v.Author, 1),
			textSlot(TextTypeAuthorTitle, v.Title, 1),
		}
	}
	var by []string
	for _, s := range []string{v.Author, v.Title} {
		if s != "" {
			by = append(by, s)
		}
	}
	attribution := ""
	if len(by) > 0 {
		attribution = "—— " + strings.Join(by, " · ")
	}
	return []slot{
		textSlot(TextTypeTitle, quoted, 3),
		textSlot(TextTypeContent, attribution, 1),
	}
}

// populate clones tpl and fills it.
func (s *Session) populate(tpl *Template, st SlideType, slots []slot) (*Template, error) {
	slide, err := tpl.Clone()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewRandomFromReader(s.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate slide id: %w", err)
	}
	slide.ID = id.String()

	plan := mapSlots(slide.Elements, slots)
	if plan.dropped > 0 {
		s.report.Dropped[st] += plan.dropped
		s.a.metrics.contentDropped.WithLabelValues(string(st)).Add(float64(plan.dropped))
		s.a.logger.Warn("dropped content", slog.String("type", string(st)), slog.String("template", tpl.ID), slog.Int("count", plan.dropped))
	}
	slide.Elements = sweepUnused(slide.Elements, plan)
	kept := make(map[*Element]struct{}, len(slide.Elements))
	for _, el := range slide.Elements {
		kept[el] = struct{}{}
	}

	for _, el := range slide.Elements {
		if el.Kind == ElementKindImage && el.ImageType != "" {
			s.fillImage(el)
		}
	}
	for _, a := range plan.assignments {
		if _, ok := kept[a.el]; !ok {
			continue
		}
		if err := s.fillText(a); err != nil {
			return nil, fmt.Errorf("failed to fill %s placeholder %s: %w", a.el.Text.Type, a.el.ID, err)
		}
	}
	return slide, nil
}

func (s *Session) fillText(a assignment) error {
	el := a.el
	w, h := fitBox(el)
	size, family := fontInfo(el.Text.Content)
	fitted, overflow := s.a.fitter.Fit(FitRequest{
		Text:       a.text,
		FontSize:   size,
		FontFamily: family,
		Width:      w,
		Height:     h,
		LineHeight: fitLineHeight(el),
		MaxLines:   a.maxLines,
		Longest:    a.longest,
	})
	if overflow {
		s.report.Overflows++
		s.a.metrics.textOverflows.Inc()
		s.a.logger.Debug("text overflows placeholder", slog.String("element", el.ID), slog.Float64("size", fitted))
	}
	content, err := patchText(el.Text.Content, a.text, fitted, a.pad)
	if err != nil {
		return err
	}
	el.Text.Content = content
	if el.Kind == ElementKindText && fitted < 15 {
		el.Text.LineHeight = 1.2
	}
	return nil
}

func (s *Session) fillImage(el *Element) {
	img, ok := s.pool.Take(el.Width, el.Height, s.rng)
	if !ok {
		if s.poolSize > 0 {
			s.report.PoolExhausted++
			s.a.metrics.poolExhausted.Inc()
		}
		return
	}
	shape := "rect"
	if el.Clip != nil && el.Clip.Shape != "" {
		shape = el.Clip.Shape
	}
	el.Src = img.Src
	el.Clip = &Clip{
		Range: cropRange(img, el.Width, el.Height),
		Shape: shape,
	}
}
