package utils

import (
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCategoryID turns a free-form category label into its stable id,
// e.g. "Deep Work" becomes "deep-work".
func NormalizeCategoryID(raw string) string {
	return slug.Make(raw)
}

// NormalizeCategoryIDs normalizes every id, dropping empties and repeats
// while keeping first-seen order.
func NormalizeCategoryIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id := NormalizeCategoryID(r)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeTitle trims a user-entered title and puts it in NFC form so the
// same title typed on different devices compares equal.
func NormalizeTitle(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}
