package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeCaption joins rendered caption segments with single spaces,
// applies NFC composition, and collapses runs of whitespace. Ideographic
// spaces count as whitespace.
func NormalizeCaption(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment = CollapseSpace(norm.NFC.String(segment)); segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, " ")
}

// CollapseSpace trims text and replaces internal whitespace runs with one
// ASCII space.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// FoldKey canonicalizes a lookup key: NFC, trimmed, and with fullwidth
// ASCII folded to its narrow form.
func FoldKey(text string) string {
	return strings.TrimSpace(width.Fold.String(norm.NFC.String(text)))
}
