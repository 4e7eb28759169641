// Package identity derives a stable visual identity (initials, colour and
// avatar feature variants) from a participant's display name.
package identity

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

// wordSplit matches a run of separator characters. \s in RE2 is ASCII only,
// so Unicode separators and the vertical tab are listed explicitly.
var wordSplit = regexp.MustCompile(`[\s\x0B\p{Z}\x{FEFF}._;\-,|/\\"'()#&]+`)

// Initials returns up to two uppercased grapheme clusters summarizing text.
// Anything from the first '@' onward is ignored so e-mail addresses use
// only their local part.
func Initials(text string) string {
	if text == "" {
		return ""
	}

	basis, _, _ := strings.Cut(text, "@")

	words := make([]string, 0, 2)
	for _, w := range wordSplit.Split(basis, -1) {
		if w == "" {
			continue
		}
		words = append(words, w)
		if len(words) == 2 {
			break
		}
	}

	var b strings.Builder
	for _, w := range words {
		b.WriteString(firstGraphemeUpper(w))
	}
	return b.String()
}

// firstGraphemeUpper uses simple per-rune case mapping, which never changes
// the number of clusters.
func firstGraphemeUpper(word string) string {
	if word == "" {
		return ""
	}
	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(word, -1)
	return strings.ToUpper(cluster)
}
