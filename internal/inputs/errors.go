package inputs

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem with a UserInputSet. It blocks a run from starting.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is a single invalid or missing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("invalid inputs: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	var sb strings.Builder
	sb.WriteString("invalid inputs:\n")
	for i, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, f.Field, f.Message))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Has reports whether the error names the given field.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
