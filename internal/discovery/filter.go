package discovery

import (
	"path"
	"strings"
)

// Filter narrows a discovered item list by name
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterByName keeps items whose base name matches pattern. Patterns with
// wildcards ("*user_spec.rb", "*payment*") match as globs or, failing that, as
// ordered fragments; plain patterns match as substrings. Order is preserved.
func (f *Filter) FilterByName(items []string, pattern string) []string {
	if pattern == "" {
		return items
	}

	filtered := []string{}
	for _, item := range items {
		if matchName(pattern, path.Base(item)) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func matchName(pattern, name string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(name, pattern)
	}
	if ok, err := path.Match(pattern, name); err == nil && ok {
		return true
	}

	// Fragments must appear in order: "*user*_spec.rb" matches "admin_user_service_spec.rb"
	rest, found := name, false
	for _, part := range strings.Split(pattern, "*") {
		if part == "" || strings.Contains(part, "?") {
			continue
		}
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest, found = rest[i+len(part):], true
	}
	return found
}
