package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Hints are facts recovered from an original filename.
type Hints struct {
	// Date is YYYYMMDD, or empty.
	Date         string
	MeetingType  string
	Participants []string
	Topics       []string
	// MatterNumber is "[NNNNN]", or empty.
	MatterNumber string
}

// HintExtractor derives Hints from a filename.
type HintExtractor interface {
	Extract(filename string) Hints
}

// RegexHints is the default HintExtractor. It recognises dates, meeting type
// keywords, capitalised names and "re <topic>" phrases.
type RegexHints struct{}

var (
	datePatterns = []struct {
		re     *regexp.Regexp
		layout string
	}{
		{regexp.MustCompile(`(\d{4})[-_](\d{2})[-_](\d{2})`), "2006 01 02"},
		{regexp.MustCompile(`(\d{2})[-_](\d{2})[-_](\d{4})`), "02 01 2006"},
		{regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})(?:\D|$)`), "2006 01 02"},
		{regexp.MustCompile(`(?:^|\D)(\d{2})(\d{2})(\d{4})(?:\D|$)`), "02 01 2006"},
	}

	tokenSplit = regexp.MustCompile(`[^\pL\pN']+`)

	meetingTypes = []struct {
		name     string
		keywords []string
	}{
		{"Call", []string{"call", "phone", "zoom", "teams", "ta", "telephone attendance"}},
		{"Meeting", []string{"meeting", "meet", "mtg", "catch up", "catchup"}},
		{"Interview", []string{"interview"}},
		{"Presentation", []string{"presentation", "present", "demo"}},
	}

	topicMarkers = map[string]bool{"re": true, "about": true, "regarding": true}

	notNames = map[string]bool{
		"meeting": true, "call": true, "interview": true, "discussion": true, "about": true,
		"regarding": true, "admin": true, "estate": true, "contract": true, "review": true,
		"notes": true, "client": true, "matter": true, "phone": true, "zoom": true,
		"teams": true, "conference": true, "legal": true, "law": true, "firm": true,
		"ta": true, "mtg": true, "telephone": true, "attendance": true, "question": true,
		"issue": true, "land": true, "gst": true, "tax": true, "advice": true,
		"consultation": true, "update": true, "follow": true, "up": true, "with": true,
		"re": true, "and": true, "the": true, "presentation": true, "demo": true,
		"recording": true, "audio": true, "voice": true, "memo": true, "new": true,
	}
)

// Extract implements HintExtractor.
func (RegexHints) Extract(filename string) Hints {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	h := Hints{Date: filenameDate(base)}
	h.MatterNumber, _ = MatterNumber(filepath.Base(filename))

	tokens := tokenSplit.Split(base, -1)
	lower := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			lower = append(lower, strings.ToLower(t))
		}
	}
	h.MeetingType = meetingType(lower)

	var names []string
	var run []string
	flush := func() {
		if len(run) > 0 && len(run) <= 3 {
			names = append(names, titleCase(strings.ToLower(strings.Join(run, " "))))
		}
		run = nil
	}
	for i, t := range tokens {
		if t == "" {
			continue
		}
		if topicMarkers[strings.ToLower(t)] {
			flush()
			if topic := topicAfter(tokens[i+1:]); topic != "" {
				h.Topics = append(h.Topics, topic)
			}
			break
		}
		if looksLikeName(t) {
			run = append(run, t)
			continue
		}
		flush()
	}
	flush()

	h.Participants = MergeParticipants(names)
	return h
}

func filenameDate(base string) string {
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		d, err := time.Parse(p.layout, m[1]+" "+m[2]+" "+m[3])
		if err != nil || d.Year() < 1900 {
			continue
		}
		return d.Format("20060102")
	}
	return ""
}

func meetingType(tokens []string) string {
	joined := " " + strings.Join(tokens, " ") + " "
	for _, mt := range meetingTypes {
		for _, kw := range mt.keywords {
			if strings.Contains(joined, " "+kw+" ") {
				return mt.name
			}
		}
	}
	return ""
}

func looksLikeName(t string) bool {
	if notNames[strings.ToLower(t)] {
		return false
	}
	r := []rune(t)
	if len(r) < 2 || len(r) > 20 {
		return false
	}
	if r[0] < 'A' || r[0] > 'Z' {
		return false
	}
	for _, c := range r[1:] {
		if !(c >= 'a' && c <= 'z') && c != '\'' {
			return false
		}
	}
	return true
}

func topicAfter(tokens []string) string {
	var words []string
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if strings.IndexFunc(t, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
			break
		}
		words = append(words, strings.ToLower(t))
	}
	if len(words) == 0 {
		return ""
	}
	topic := titleCase(strings.Join(words, " "))
	if len(topic) <= 2 {
		return ""
	}
	return topic
}

// titleCase builds a Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
