// Package tokenizer estimates token counts for budgeting. Provider
// usage reports remain authoritative for billing; these estimates only
// size chunks before any API call is made.
package tokenizer

import (
	"strings"
)

// CountTokens provides a rough token count estimate (~0.75 words per
// token for English text).
func CountTokens(text string) int {
	words := strings.Fields(text)
	n := len(words) * 4 / 3
	if n < 1 {
		n = 1
	}
	return n
}
