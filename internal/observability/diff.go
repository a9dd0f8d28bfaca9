package observability

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// PromptDiff returns a line diff of two prompts. Lines are prefixed with "+", "-" or a space,
// preceded by a summary of added and removed lines.
func PromptDiff(oldText, newText string) string {
	if oldText == newText {
		return "(no changes)"
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var body strings.Builder
	added, removed := 0, 0
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				added++
			case diffmatchpatch.DiffDelete:
				removed++
			}
			body.WriteString(prefix + line + "\n")
		}
	}

	return fmt.Sprintf("%d line(s) added, %d removed\n%s", added, removed, strings.TrimSuffix(body.String(), "\n"))
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}
