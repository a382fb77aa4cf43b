package naming

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SamePerson reports whether a and b name the same person: equal after
// normalization, or the words of one are a subset of the words of the other
// ("Rob" and "Rob Veitch", "Fox" and "Michael Fox").
func SamePerson(a, b string) bool {
	wa, wb := nameWords(a), nameWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	return subset(wa, wb) || subset(wb, wa)
}

func nameWords(name string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(name)) {
		set[w] = true
	}
	return set
}

func subset(a, b map[string]bool) bool {
	for w := range a {
		if !b[w] {
			return false
		}
	}
	return true
}

// MergeParticipants joins participant lists in order, dropping duplicates.
// When two entries are the same person the more complete name is kept, in the
// position of the first occurrence.
func MergeParticipants(lists ...[]string) []string {
	var merged []string
	for _, list := range lists {
	next:
		for _, name := range list {
			name = strings.Join(strings.Fields(name), " ")
			if name == "" {
				continue
			}
			for i, existing := range merged {
				if SamePerson(existing, name) {
					if moreComplete(name, existing) {
						merged[i] = name
					}
					continue next
				}
			}
			merged = append(merged, name)
		}
	}
	return merged
}

func moreComplete(a, b string) bool {
	na, nb := len(strings.Fields(a)), len(strings.Fields(b))
	if na != nb {
		return na > nb
	}
	return utf8.RuneCountInString(a) > utf8.RuneCountInString(b)
}

var matterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[(\d{5})\]`),
	regexp.MustCompile(`_(\d{5})_`),
	regexp.MustCompile(`_(\d{5})(?:\.|$)`),
}

// MatterNumber finds a five digit matter number in a filename, written as
// [12345], _12345_ or a trailing _12345, and returns it as "[12345]".
func MatterNumber(filename string) (string, bool) {
	for _, re := range matterPatterns {
		if m := re.FindStringSubmatch(filename); m != nil {
			return "[" + m[1] + "]", true
		}
	}
	return "", false
}
