package aippt

// selectTemplates returns the templates of pool that best accommodate n entries tagged with tag.
// All returned templates share the same placeholder count, the caller breaks the tie at random.
func selectTemplates(pool []*Template, n int, tag TextType) []*Template {
	if len(pool) == 0 {
		return nil
	}
	if n == 1 {
		var single []*Template
		for _, t := range pool {
			if t.countText(tag) == 0 && t.countText(TextTypeTitle) == 1 && t.countText(TextTypeContent) == 1 {
				single = append(single, t)
			}
		}
		if len(single) > 0 {
			return single
		}
	}

	target := -1
	for _, t := range pool {
		c := t.countText(tag)
		if c >= n && (target < 0 || c < target) {
			target = c
		}
	}
	if target < 0 {
		for _, t := range pool {
			target = max(target, t.countText(tag))
		}
	}

	var selected []*Template
	for _, t := range pool {
		if t.countText(tag) == target {
			selected = append(selected, t)
		}
	}
	return selected
}
