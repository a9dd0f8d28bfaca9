package fetch

import (
	"net/url"
	"strings"
)

// Source is a family of sites with known page structure.
type Source string

const (
	SourceWikipedia Source = "wikipedia"
	SourceMedium    Source = "medium"
	SourceSubstack  Source = "substack"
	SourceLinkedIn  Source = "linkedin"
	SourceGeneric   Source = "generic"
)

// DetectSource identifies the site family from a URL.
func DetectSource(urlStr string) Source {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return SourceGeneric
	}
	host := strings.ToLower(parsed.Hostname())

	switch {
	case strings.HasSuffix(host, "wikipedia.org"):
		return SourceWikipedia
	case host == "medium.com" || strings.HasSuffix(host, ".medium.com"):
		return SourceMedium
	case strings.HasSuffix(host, ".substack.com"):
		return SourceSubstack
	case strings.HasSuffix(host, "linkedin.com"):
		return SourceLinkedIn
	}
	return SourceGeneric
}

// SourceContentSelectors returns content selectors tuned for a site family.
func SourceContentSelectors(source Source) []string {
	switch source {
	case SourceWikipedia:
		return []string{"#mw-content-text .mw-parser-output", "#bodyContent"}
	case SourceMedium:
		return []string{"article", "section"}
	case SourceSubstack:
		return []string{".available-content", ".body.markup", "article"}
	case SourceLinkedIn:
		return []string{".article-content", ".core-section-container", "main"}
	default:
		return DefaultTextSelectors()
	}
}

// SourceNoiseSelectors returns elements to drop before extracting text.
func SourceNoiseSelectors(source Source) []string {
	common := []string{
		"form",
		".social-share",
		".share-buttons",
		".newsletter-signup",
		".subscribe",
		".related-articles",
		".comments",
		".cookie-consent",
		".gdpr-notice",
	}

	switch source {
	case SourceWikipedia:
		return append(common, ".reference", ".reflist", ".navbox", ".mw-editsection", ".infobox", "#toc")
	case SourceMedium:
		return append(common, "[data-testid='headerClapButton']", ".pw-responses")
	case SourceSubstack:
		return append(common, ".subscription-widget-wrap", ".post-footer")
	case SourceLinkedIn:
		return append(common, ".sign-in-modal", ".join-form")
	default:
		return common
	}
}
