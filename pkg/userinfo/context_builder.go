package userinfo

import (
	"sort"
	"strings"
)

const DefaultMaxAttributes = 3

// InfoSource supplies the current fact snapshot.
type InfoSource interface {
	CurrentInfo() Info
}

// ContextBuilder picks the facts most relevant to a prompt.
type ContextBuilder struct {
	source        InfoSource
	maxAttributes int
}

func NewContextBuilder(source InfoSource, maxAttributes int) *ContextBuilder {
	if maxAttributes <= 0 {
		maxAttributes = DefaultMaxAttributes
	}
	return &ContextBuilder{source: source, maxAttributes: maxAttributes}
}

// BuildProfileText selects attributes whose key appears in the prompt, then
// fills the remaining slots with the most frequently mentioned attributes.
// The result lists "key: v1, v2" entries sorted by key. ok is false when
// nothing was selected.
func (b *ContextBuilder) BuildProfileText(prompt string) (string, bool) {
	info := b.source.CurrentInfo()
	if len(info) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	byCount := func(s []string) {
		sort.SliceStable(s, func(i, j int) bool {
			ci, cj := info.TotalCount(s[i]), info.TotalCount(s[j])
			if ci != cj {
				return ci > cj
			}
			return s[i] < s[j]
		})
	}

	lowered := strings.ToLower(prompt)
	var matched, rest []string
	for _, k := range keys {
		if strings.Contains(lowered, strings.ToLower(k)) {
			matched = append(matched, k)
		} else {
			rest = append(rest, k)
		}
	}
	byCount(matched)
	byCount(rest)

	selected := append(matched, rest...)
	if len(selected) > b.maxAttributes {
		selected = selected[:b.maxAttributes]
	}
	if len(selected) == 0 {
		return "", false
	}
	sort.Strings(selected)

	entries := make([]string, 0, len(selected))
	for _, k := range selected {
		values := make([]string, 0, len(info[k]))
		for _, f := range info[k] {
			values = append(values, f.Value)
		}
		entries = append(entries, k+": "+strings.Join(values, ", "))
	}
	return strings.Join(entries, ", "), true
}
