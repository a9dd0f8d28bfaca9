package ratelimit

import "strings"

// unlimited endpoints never consume a token.
var unlimited = map[string]bool{
	"GET /health": true,
	"GET /models": true,
}

// MatchEndpoint returns the configuration for a request, or nil when the defaults apply.
//
// Patterns follow the server's routes: a "{name}" segment matches any one non-empty segment
// and a trailing "/" matches every longer path. An exact path wins; otherwise the pattern
// with the most literal segments does.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if unlimited[method+" "+path] {
		return &EndpointConfig{}
	}

	var best *EndpointConfig
	bestLiterals := -1
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if literals, ok := matchPattern(c.Path, path); ok && literals > bestLiterals {
			best, bestLiterals = c, literals
		}
	}
	return best
}

// matchPattern reports whether path fits pattern and how many literal segments it matched.
func matchPattern(pattern, path string) (int, bool) {
	want := segments(pattern)
	got := segments(path)

	if strings.HasSuffix(pattern, "/") {
		if len(got) <= len(want) {
			return 0, false
		}
		got = got[:len(want)]
	} else if len(got) != len(want) {
		return 0, false
	}

	literals := 0
	for i, seg := range want {
		switch {
		case isWildcard(seg):
			if got[i] == "" {
				return 0, false
			}
		case seg == got[i]:
			literals++
		default:
			return 0, false
		}
	}
	return literals, true
}

func segments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isWildcard(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}
