package aippt

import (
	"cmp"
	"slices"
	"strconv"
	"unicode/utf8"
)

type ordering int

const (
	// orderReading sorts placeholders by top*2+left.
	orderReading ordering = iota
	// orderTop sorts placeholders by top only.
	orderTop
)

// numeralOrderThreshold is the sibling count above which authored numerals decide the order.
const numeralOrderThreshold = 6

// slot binds the placeholders tagged with tag to values.
type slot struct {
	tag      TextType
	values   []string
	maxLines int
	// list slots zip values onto placeholders in order and remove surplus placeholders with their group.
	// Other slots write values[0] into every matching placeholder.
	list bool
	// longest fits every placeholder of the slot to its longest value.
	longest bool
	// pad zero pads a single digit written over a two character numeral.
	pad   bool
	order ordering
	// field groups alternative slots carrying the same content, e.g. timeLabel and itemTitle.
	field string
}

func listSlot(tag TextType, values []string, maxLines int, longest bool) slot {
	return slot{tag: tag, values: values, maxLines: maxLines, list: true, longest: longest}
}

func withField(s slot, field string) slot {
	s.field = field
	return s
}

func textSlot(tag TextType, value string, maxLines int) slot {
	return slot{tag: tag, values: []string{value}, maxLines: maxLines}
}

// numberSlot numbers n placeholders from offset+1.
func numberSlot(tag TextType, n, offset int) slot {
	values := make([]string, n)
	for i := range n {
		values[i] = strconv.Itoa(i + offset + 1)
	}
	return slot{tag: tag, values: values, maxLines: 1, list: true, pad: true}
}

type assignment struct {
	el       *Element
	text     string
	maxLines int
	longest  string
	pad      bool
}

type slotPlan struct {
	assignments  []assignment
	unusedIDs    map[string]struct{}
	unusedGroups map[string]struct{}
	// dropped counts non-empty content values that found no placeholder.
	dropped int
}

// slotOrder returns the placeholders of elements tagged with tag in filling order.
func slotOrder(elements []*Element, tag TextType, order ordering) []*Element {
	var tagged []*Element
	for _, el := range elements {
		if el.IsText(tag) {
			tagged = append(tagged, el)
		}
	}
	slices.SortStableFunc(tagged, func(a, b *Element) int {
		if order == orderTop {
			return cmp.Compare(a.Top, b.Top)
		}
		return cmp.Compare(a.Top*2+a.Left, b.Top*2+b.Left)
	})
	if len(tagged) <= numeralOrderThreshold {
		return tagged
	}

	numerals := make(map[*Element]int, len(tagged))
	for _, el := range tagged {
		if n, ok := numeralOf(el, elements); ok {
			numerals[el] = n
		}
	}
	slices.SortStableFunc(tagged, func(a, b *Element) int {
		na, oka := numerals[a]
		nb, okb := numerals[b]
		switch {
		case oka && okb:
			return cmp.Compare(na, nb)
		case oka:
			return -1
		case okb:
			return 1
		default:
			return 0
		}
	})
	return tagged
}

// numeralOf returns the authored numeral of a placeholder, reading it from the numbered
// placeholder of the same group when el is not itself numbered.
func numeralOf(el *Element, elements []*Element) (int, bool) {
	if el.IsText(TextTypeItemNumber) || el.IsText(TextTypePartNumber) {
		return leadingNumeral(el.Text.Content)
	}
	if el.GroupID == "" {
		return 0, false
	}
	for _, sibling := range elements {
		if sibling != el && sibling.GroupID == el.GroupID && sibling.IsText(TextTypeItemNumber) {
			return leadingNumeral(sibling.Text.Content)
		}
	}
	return 0, false
}

// mapSlots plans which placeholder receives which text. A placeholder is assigned at most once.
func mapSlots(elements []*Element, slots []slot) *slotPlan {
	plan := &slotPlan{
		unusedIDs:    map[string]struct{}{},
		unusedGroups: map[string]struct{}{},
	}
	assigned := map[*Element]struct{}{}
	type fieldUse struct {
		values   []string
		consumed int
	}
	fields := map[string]*fieldUse{}
	var fieldOrder []string
	for _, s := range slots {
		var candidates []*Element
		for _, el := range slotOrder(elements, s.tag, s.order) {
			if _, ok := assigned[el]; !ok {
				candidates = append(candidates, el)
			}
		}
		longest := ""
		if s.longest {
			longest = longestOf(s.values)
		}
		if !s.list {
			if len(s.values) == 0 {
				continue
			}
			for _, el := range candidates {
				assigned[el] = struct{}{}
				plan.assignments = append(plan.assignments, assignment{el: el, text: s.values[0], maxLines: s.maxLines, pad: s.pad})
			}
			continue
		}
		for i, el := range candidates {
			assigned[el] = struct{}{}
			if i >= len(s.values) {
				plan.unusedIDs[el.ID] = struct{}{}
				if el.GroupID != "" {
					plan.unusedGroups[el.GroupID] = struct{}{}
				}
				continue
			}
			plan.assignments = append(plan.assignments, assignment{el: el, text: s.values[i], maxLines: s.maxLines, longest: longest, pad: s.pad})
		}
		if s.pad {
			continue
		}
		field := s.field
		if field == "" {
			field = string(s.tag)
		}
		u, ok := fields[field]
		if !ok {
			u = &fieldUse{}
			fields[field] = u
			fieldOrder = append(fieldOrder, field)
		}
		if len(s.values) > len(u.values) {
			u.values = s.values
		}
		u.consumed = max(u.consumed, min(len(s.values), len(candidates)))
	}
	for _, f := range fieldOrder {
		u := fields[f]
		// empty values have nothing to lose
		for _, v := range u.values[u.consumed:] {
			if v != "" {
				plan.dropped++
			}
		}
	}
	return plan
}

// sweepUnused removes unused placeholders together with every element of their groups.
func sweepUnused(elements []*Element, plan *slotPlan) []*Element {
	if len(plan.unusedIDs) == 0 {
		return elements
	}
	return slices.DeleteFunc(elements, func(el *Element) bool {
		if _, ok := plan.unusedIDs[el.ID]; ok {
			return true
		}
		if el.GroupID == "" {
			return false
		}
		_, ok := plan.unusedGroups[el.GroupID]
		return ok
	})
}

func longestOf(values []string) string {
	longest := ""
	for _, v := range values {
		if utf8.RuneCountInString(v) > utf8.RuneCountInString(longest) {
			longest = v
		}
	}
	return longest
}
