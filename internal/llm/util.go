package llm

import "strings"

const (
	improvedOpen  = "<IMPROVED_VARIABLE>"
	improvedClose = "</IMPROVED_VARIABLE>"
)

// StripCodeFence removes a surrounding markdown code block, including a language tag on the
// opening fence. Text without a leading fence is returned trimmed.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Skip potential language identifier on first line
	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := text[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// ExtractImprovedPrompt pulls the rewritten prompt out of an optimizer response. The text between
// the improved-variable tags wins; an unterminated opening tag takes everything after it.
// Responses without tags are returned with any code fence removed. The boolean reports
// whether tags were found.
func ExtractImprovedPrompt(response string) (string, bool) {
	start := strings.Index(response, improvedOpen)
	if start < 0 {
		return StripCodeFence(response), false
	}

	body := response[start+len(improvedOpen):]
	if end := strings.Index(body, improvedClose); end >= 0 {
		body = body[:end]
	}
	return StripCodeFence(body), true
}
