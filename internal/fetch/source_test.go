package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSource(t *testing.T) {
	tests := []struct {
		url      string
		expected Source
	}{
		{"https://en.wikipedia.org/wiki/Hydrogen_economy", SourceWikipedia},
		{"https://medium.com/@someone/post-123", SourceMedium},
		{"https://engineering.medium.com/post", SourceMedium},
		{"https://energy.substack.com/p/weekly", SourceSubstack},
		{"https://www.linkedin.com/pulse/article", SourceLinkedIn},
		{"https://notmedium.com/post", SourceGeneric},
		{"https://example.com/news", SourceGeneric},
		{"::not a url", SourceGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectSource(tt.url))
		})
	}
}

func TestSourceSelectors(t *testing.T) {
	assert.Equal(t, DefaultTextSelectors(), SourceContentSelectors(SourceGeneric))
	assert.Contains(t, SourceContentSelectors(SourceSubstack), ".available-content")

	generic := SourceNoiseSelectors(SourceGeneric)
	wiki := SourceNoiseSelectors(SourceWikipedia)
	assert.Contains(t, generic, "form")
	assert.Contains(t, wiki, ".navbox")
	assert.Greater(t, len(wiki), len(generic))
}
