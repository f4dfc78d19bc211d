// Package strings holds helpers for list-valued settings and query params.
package strings

import "strings"

// SplitList splits a comma-separated value into trimmed, non-empty,
// first-seen-unique parts. It returns nil when nothing remains.
func SplitList(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
