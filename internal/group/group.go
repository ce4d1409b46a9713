// Package group computes the per-category breakdown of an export run.
package group

import "github.com/tschwarz/discourse-export/internal/export"

// Group is the set of surviving topic IDs for one category.
type Group struct {
	CategoryID int
	TopicIDs   []int
	Count      int
}

// ByCategory groups topic IDs by category, preserving first-seen category
// order and within-category insertion order. Categories with no surviving
// topics do not appear.
func ByCategory(topics []export.Topic) []Group {
	index := make(map[int]int)
	var groups []Group

	for _, t := range topics {
		i, ok := index[t.CategoryID]
		if !ok {
			i = len(groups)
			index[t.CategoryID] = i
			groups = append(groups, Group{CategoryID: t.CategoryID})
		}
		groups[i].TopicIDs = append(groups[i].TopicIDs, t.ID)
		groups[i].Count++
	}
	return groups
}
