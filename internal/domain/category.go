package domain

import "sort"

// CategoryCounts maps a category label (country, organization, grid cell) to its node count.
type CategoryCounts map[string]int

// Tally builds counts in one pass, skipping empty labels.
func Tally(labels []string) CategoryCounts {
	counts := make(CategoryCounts)
	for _, l := range labels {
		if l == "" {
			continue
		}
		counts[l]++
	}
	return counts
}

// Total returns the number of counted nodes.
func (c CategoryCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Shares returns the non-empty categories ordered by count descending, then label.
// Every aggregate over categories iterates this order so float sums are reproducible.
func (c CategoryCounts) Shares() []CategoryShare {
	total := c.Total()
	out := make([]CategoryShare, 0, len(c))
	for label, n := range c {
		if n <= 0 {
			continue
		}
		out = append(out, CategoryShare{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	for i := range out {
		out[i].Share = float64(out[i].Count) / float64(total)
	}
	return out
}

// CategoryShare is one category's count and share of the total.
type CategoryShare struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// CategoryProfile summarizes a categorical distribution for composite scoring.
type CategoryProfile struct {
	Attribute string          `json:"attribute"`
	Distinct  int             `json:"distinct"`
	Counted   int             `json:"counted"`
	Unknown   int             `json:"unknown"`
	HHI       float64         `json:"hhi"`
	TopShare  float64         `json:"topShare"`
	Top       []CategoryShare `json:"top,omitempty"`
}
