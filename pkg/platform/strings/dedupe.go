// Package strings provides string list helpers for configuration parsing.
package strings

import (
	"strings"
)

// SplitList splits s on sep, trims each element and drops empties and
// repeats. Order of first appearance is preserved.
//
//	SplitList(" kafka-1:9092, kafka-2:9092,,kafka-1:9092", ",")
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
