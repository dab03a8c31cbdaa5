package store

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultStopWords mixes programming noise words with common English ones,
// since memory rows hold both code and prose.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
	"the", "and", "of", "to", "in", "is", "on", "with", "that", "this",
	"it", "as", "be", "are", "was", "by", "an", "or", "at", "from",
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeCode splits text with code-aware rules. Identifiers are split on
// camelCase and snake_case boundaries; a compound identifier also keeps its
// joined form so "getUserById" matches both "getuserbyid" and "user".
// Tokens are lowercased and shorter than 2 characters are dropped.
func TokenizeCode(text string) []string {
	var tokens []string

	for _, word := range tokenRegex.FindAllString(text, -1) {
		parts := SplitCodeToken(word)
		if len(parts) > 1 {
			if joined := strings.ToLower(strings.ReplaceAll(word, "_", "")); len(joined) >= 2 {
				tokens = append(tokens, joined)
			}
		}
		for _, p := range parts {
			lower := strings.ToLower(p)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// SplitCodeToken splits camelCase and snake_case identifiers.
func SplitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}

	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase identifiers:
//
//	"getUserById"      -> ["get", "User", "By", "Id"]
//	"parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// uniqueTokens drops repeats, keeping first-seen order.
func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
