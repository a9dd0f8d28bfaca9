package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
)

// EstimateTokens approximates the token count of text. It uses the gpt-4o encoding as a proxy
// for every provider and falls back to four characters per token when the encoding is
// unavailable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel("gpt-4o")
		if err == nil {
			encoding = enc
		}
	})

	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
