// Package naming turns a transcript into an output filename using a
// propose/validate exchange with the summarization service, and holds the
// filename heuristics that support it.
package naming

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest cleaned filename, in characters.
const MaxLength = 200

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// alwaysCollapse are connectives whose immediate repeats are always removed.
var alwaysCollapse = map[string]bool{
	"re": true, "with": true, "and": true, "the": true, "a": true,
	"an": true, "of": true, "in": true, "on": true, "at": true,
}

// Clean makes name safe to use as a filename: illegal characters are removed,
// whitespace runs collapse to one space, immediate word repeats are collapsed
// and the result is cut to MaxLength at a word boundary. Clean is idempotent.
func Clean(name string) string {
	name = illegalChars.ReplaceAllString(name, "")
	name = controlChars.ReplaceAllString(name, " ")
	name = norm.NFC.String(name)

	words := collapseRepeats(strings.Fields(name))
	return truncate(strings.Join(words, " "), MaxLength)
}

// collapseRepeats drops a word equal (ignoring case) to the word kept before
// it, unless it looks like a proper noun and is not a connective.
func collapseRepeats(words []string) []string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if n := len(kept); n > 0 && strings.EqualFold(kept[n-1], w) {
			if !properNoun(w) || alwaysCollapse[strings.ToLower(w)] {
				continue
			}
		}
		kept = append(kept, w)
	}
	return kept
}

func properNoun(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r) && utf8.RuneCountInString(w) > 2
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	// A word ending exactly at the limit is kept whole.
	if !unicode.IsSpace(runes[max]) {
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace)
}
