// Package scoring extracts the score, rationale and feedback from evaluator output.
//
// Evaluator output is expected to carry three headed sections in order:
//
//	## Scoring Description:
//	## Overall Score:
//	## System Prompt Improvement Feedback:
//
// Each extraction is independent. Missing sections yield sentinel text or an absent score; parsing never fails.
package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// RationaleSentinel is returned when no Scoring Description section is present.
	RationaleSentinel = "Could not parse scoring description from evaluation output."
	// FeedbackSentinel is returned when no System Prompt Improvement Feedback section is present.
	FeedbackSentinel = "Could not parse feedback from evaluation output."

	// MinScore and MaxScore bound every score the parser reports.
	MinScore = 0
	MaxScore = 100
)

type section int

const (
	sectionRationale section = iota
	sectionScore
	sectionFeedback
)

// headerPattern matches a section header only when it opens a markdown heading line.
var headerPattern = regexp.MustCompile(`(?im)^[ \t]*(#{1,6})[ \t]*(scoring description|overall score|system prompt improvement feedback)[ \t]*(?::|$)`)

var (
	labelledScorePattern = regexp.MustCompile("(?i)`?score`?[ \t]*:")
	digitsPattern        = regexp.MustCompile(`\d+`)
	rationaleLabel       = regexp.MustCompile("(?i)^`?scoring description`?[ \t]*:")
	feedbackLabel        = regexp.MustCompile("(?i)^`?feedback`?[ \t]*:")
)

// Evaluation is the structured result of parsing one evaluator response.
// Score is nil when no valid 0-100 integer could be found.
type Evaluation struct {
	Score     *int   `json:"score" jsonschema:"oneof_type=integer;null"`
	Rationale string `json:"rationale"`
	Feedback  string `json:"feedback"`
	Raw       string `json:"raw,omitempty"`
}

// HasScore reports whether a score was found.
func (e Evaluation) HasScore() bool {
	return e.Score != nil
}

// ScoreValue returns the score and whether it was present.
func (e Evaluation) ScoreValue() (int, bool) {
	if e.Score == nil {
		return 0, false
	}
	return *e.Score, true
}

type headerMatch struct {
	kind  section
	level int // number of leading #
	start int // start of the heading line
	end   int // end of the heading marker, where the body begins
}

// Parse extracts an Evaluation from raw evaluator text. Raw keeps the text as given; parsing
// sees CRLF line endings as LF.
func Parse(raw string) Evaluation {
	result := Evaluation{
		Rationale: RationaleSentinel,
		Feedback:  FeedbackSentinel,
		Raw:       raw,
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	if strings.TrimSpace(raw) == "" {
		return result
	}

	headers := findHeaders(raw)

	if h, ok := first(headers, sectionRationale); ok {
		body := raw[h.end:sectionEnd(raw, headers, h, sectionScore, sectionFeedback)]
		result.Rationale = stripLabel(body, rationaleLabel)
	}

	if h, ok := first(headers, sectionScore); ok {
		body := raw[h.end:sectionEnd(raw, headers, h, sectionRationale, sectionFeedback)]
		result.Score = extractScore(body)
	}

	if h, ok := first(headers, sectionFeedback); ok {
		result.Feedback = stripLabel(raw[h.end:], feedbackLabel)
	}

	return result
}

// findHeaders returns the section headers at the heading level of the first one found.
// Deeper or shallower headings with a section name are treated as body text.
func findHeaders(raw string) []headerMatch {
	idx := headerPattern.FindAllStringSubmatchIndex(raw, -1)
	headers := make([]headerMatch, 0, len(idx))
	for _, m := range idx {
		level := m[3] - m[2]
		if len(headers) > 0 && level != headers[0].level {
			continue
		}
		name := strings.ToLower(raw[m[4]:m[5]])
		var kind section
		switch name {
		case "scoring description":
			kind = sectionRationale
		case "overall score":
			kind = sectionScore
		default:
			kind = sectionFeedback
		}
		headers = append(headers, headerMatch{kind: kind, level: level, start: m[0], end: m[1]})
	}
	return headers
}

func first(headers []headerMatch, kind section) (headerMatch, bool) {
	for _, h := range headers {
		if h.kind == kind {
			return h, true
		}
	}
	return headerMatch{}, false
}

// sectionEnd returns the offset of the next header of one of the given kinds after h, or len(raw).
func sectionEnd(raw string, headers []headerMatch, h headerMatch, stops ...section) int {
	for _, other := range headers {
		if other.start <= h.start {
			continue
		}
		for _, kind := range stops {
			if other.kind == kind {
				return other.start
			}
		}
	}
	return len(raw)
}

func stripLabel(body string, label *regexp.Regexp) string {
	body = strings.TrimSpace(body)
	if loc := label.FindStringIndex(body); loc != nil {
		body = strings.TrimSpace(body[loc[1]:])
	}
	return body
}

// extractScore prefers a labelled `score:` value, which may sit on the line after the label.
// A label with no digits after it means the score is absent.
func extractScore(body string) *int {
	var candidate string
	if loc := labelledScorePattern.FindStringIndex(body); loc != nil {
		rest := strings.TrimLeft(body[loc[1]:], " \t\r\n*`")
		m := digitsPattern.FindStringIndex(rest)
		if m == nil || m[0] != 0 {
			return nil
		}
		candidate = rest[m[0]:m[1]]
	} else {
		candidate = digitsPattern.FindString(body)
	}
	if candidate == "" {
		return nil
	}

	value, err := strconv.Atoi(candidate)
	if err != nil || value < MinScore || value > MaxScore {
		return nil
	}
	return &value
}
