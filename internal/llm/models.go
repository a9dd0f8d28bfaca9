package llm

import (
	"fmt"
	"strings"
)

// Catalogue defaults, by display name.
const (
	DefaultGeneratorModel = "Gemini 1.5 Flash"
	DefaultEvaluatorModel = "Gemini 2.5 Flash Preview"
)

// ModelOption is a selectable model.
type ModelOption struct {
	DisplayName string `json:"display_name"`
	ID          string `json:"id"`
}

var catalogue = []ModelOption{
	{DisplayName: "Gemini 1.5 Flash", ID: "gemini-1.5-flash"},
	{DisplayName: "Gemini 1.5 Pro", ID: "gemini-1.5-pro"},
	{DisplayName: "Gemini 2.5 Flash Preview", ID: "gemini-2.5-flash-preview-04-17"},
	{DisplayName: "Gemini 2.5 Pro Preview", ID: "gemini-2.5-pro-preview-05-06"},
	{DisplayName: "Gemini 2.0 Flash", ID: "gemini-2.0-flash"},
}

// Models returns the catalogue in display order.
func Models() []ModelOption {
	out := make([]ModelOption, len(catalogue))
	copy(out, catalogue)
	return out
}

// ResolveModel maps a display name (case-insensitive) or a catalogue id to the provider id.
func ResolveModel(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, m := range catalogue {
		if strings.EqualFold(m.DisplayName, name) || m.ID == name {
			return m.ID, true
		}
	}
	return "", false
}

// ModelID resolves name through the catalogue and passes unknown names through unchanged, so
// provider ids outside the catalogue (e.g. local ollama tags) still work.
func ModelID(name string) string {
	if id, ok := ResolveModel(name); ok {
		return id
	}
	return strings.TrimSpace(name)
}

// MustResolveModel is ResolveModel for names known at compile time.
func MustResolveModel(name string) string {
	id, ok := ResolveModel(name)
	if !ok {
		panic(fmt.Sprintf("model %q is not in the catalogue", name))
	}
	return id
}
