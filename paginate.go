package aippt

import "slices"

// contentPageSizes returns the page sizes for a content item with n points, or nil when it fits on one page.
func contentPageSizes(n int) []int {
	switch {
	case n == 5 || n == 6:
		return []int{3, n - 3}
	case n == 7 || n == 8:
		return []int{4, n - 4}
	case n == 9 || n == 10:
		return []int{3, 3, n - 6}
	case n > 10:
		return []int{4, 4, n - 8}
	default:
		return nil
	}
}

// contentsPageSizes returns the page sizes for a table of contents with n entries.
func contentsPageSizes(n int) []int {
	switch {
	case n == 11:
		return []int{6, n - 6}
	case n > 11:
		return []int{10, n - 10}
	default:
		return nil
	}
}

// Paginate splits oversized content and contents items into consecutive pages.
// Each page carries the number of entries emitted before it as its offset.
// Items are never mutated; untouched items are returned as is.
func Paginate(items []Item) []Item {
	paged := make([]Item, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case *Content:
			sizes := contentPageSizes(len(v.Items))
			if sizes == nil {
				paged = append(paged, item)
				continue
			}
			start := 0
			for _, size := range sizes {
				page := *v
				page.Items = slices.Clone(v.Items[start : start+size])
				page.Offset = v.Offset + start
				paged = append(paged, &page)
				start += size
			}
		case *Contents:
			sizes := contentsPageSizes(len(v.Items))
			if sizes == nil {
				paged = append(paged, item)
				continue
			}
			start := 0
			for _, size := range sizes {
				page := *v
				page.Items = slices.Clone(v.Items[start : start+size])
				page.Offset = v.Offset + start
				paged = append(paged, &page)
				start += size
			}
		default:
			paged = append(paged, item)
		}
	}
	return paged
}
