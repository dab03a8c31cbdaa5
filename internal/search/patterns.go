package search

import (
	"regexp"
	"strings"
)

// Compiled at package init.
var (
	// Declaration and import shapes. Bare keywords such as "return" or
	// "interface" are ordinary English and do not count.
	codeDeclPattern = regexp.MustCompile(`\bfunc\s+(?:\([^)]*\)\s*)?[A-Za-z_]\w*` +
		`|\bfunction\s+[A-Za-z_$][\w$]*\s*\(` +
		`|\bclass\s+[A-Z]\w*` +
		`|\bdef\s+\w+\s*\(` +
		`|\bimport\s+["'{(*]` +
		`|\bfrom\s+[\w.]+\s+import\s+\w` +
		`|\b(?:const|let|var)\s+[A-Za-z_$][\w$]*\s*(?::\s*[\w.\[\]<>]+\s*)?=` +
		`|\b(?:type|struct|interface|enum|trait)\s+[A-Za-z_]\w*\s*(?:struct\s*)?\{` +
		`|\bimpl\s+[A-Za-z_]\w*(?:\s+for\s+[A-Za-z_]\w*)?\s*\{`)

	// Brackets, arrows and scope operators.
	codeSyntaxPattern = regexp.MustCompile(`[{}\[\]<>;]|=>|->|::`)

	// pkg.Symbol, obj.method, a.b.c
	dottedIdentPattern = regexp.MustCompile(`\b[A-Za-z_]\w*\.[A-Za-z_]\w*\b`)

	// Identifier shapes, matched per token.
	camelCasePattern      = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern     = regexp.MustCompile(`^[A-Z][a-z0-9]+([A-Z][a-z0-9]+)+$`)
	snakeCasePattern      = regexp.MustCompile(`^[a-z]+(_[a-z0-9]+)+$`)
	screamingSnakePattern = regexp.MustCompile(`^[A-Z]+(_[A-Z0-9]+)+$`)

	// Navigation: paths, file names and calls.
	pathSeparatorPattern = regexp.MustCompile(`[/\\]`)
	fileExtensionPattern = regexp.MustCompile(`(?i)\w\.(go|ts|tsx|js|jsx|mjs|py|md|mdx|json|yaml|yml|toml|css|scss|html|rs|java|kt|c|cc|cpp|h|hpp|rb|php|swift|sh|sql|txt)\b`)
	callPattern          = regexp.MustCompile(`\w\s*\(`)

	keywordTokenPattern = regexp.MustCompile(`[a-z0-9_]+`)
)

// interrogatives route a query to semantic search when no technical term is present.
var interrogatives = map[string]struct{}{
	"how": {}, "what": {}, "why": {}, "when": {}, "where": {},
	"should": {}, "can": {}, "could": {}, "would": {},
}

// technicalTerms are matched as whole tokens.
var technicalTerms = map[string]struct{}{
	"api": {}, "apis": {}, "auth": {}, "jwt": {}, "oauth": {}, "oauth2": {},
	"sql": {}, "nosql": {}, "redis": {}, "docker": {}, "kubernetes": {}, "k8s": {},
	"graphql": {}, "grpc": {}, "http": {}, "https": {}, "json": {}, "yaml": {},
	"html": {}, "css": {}, "react": {}, "vue": {}, "npm": {}, "git": {},
	"aws": {}, "gcp": {}, "postgres": {}, "postgresql": {}, "mysql": {},
	"mongodb": {}, "sqlite": {}, "cli": {}, "sdk": {}, "url": {}, "uri": {},
	"dns": {}, "tls": {}, "ssl": {}, "ssh": {}, "websocket": {}, "webhook": {},
	"cors": {}, "csrf": {}, "xss": {}, "regex": {}, "orm": {}, "mcp": {},
	"llm": {}, "hnsw": {}, "fts": {}, "bm25": {}, "ci": {}, "cdn": {},
}

var queryStopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "has": {}, "was": {}, "our": {},
	"out": {}, "how": {}, "what": {}, "why": {}, "when": {}, "where": {},
	"should": {}, "could": {}, "would": {}, "does": {}, "this": {}, "that": {},
	"with": {}, "from": {}, "into": {}, "about": {}, "which": {}, "there": {},
	"their": {}, "them": {}, "then": {}, "than": {}, "these": {}, "those": {},
	"have": {}, "been": {}, "will": {}, "some": {}, "such": {}, "only": {},
	"also": {}, "very": {}, "just": {}, "its": {}, "who": {}, "whom": {},
	"did": {}, "doing": {}, "get": {}, "use": {}, "using": {},
}

// hasCodeElements reports code-syntax markers.
func hasCodeElements(query string) bool {
	if codeDeclPattern.MatchString(query) ||
		codeSyntaxPattern.MatchString(query) ||
		dottedIdentPattern.MatchString(query) {
		return true
	}
	for _, tok := range strings.Fields(query) {
		tok = strings.Trim(tok, `"'.,;:!?`)
		if camelCasePattern.MatchString(tok) ||
			pascalCasePattern.MatchString(tok) ||
			snakeCasePattern.MatchString(tok) ||
			screamingSnakePattern.MatchString(tok) {
			return true
		}
	}
	return false
}

// isNavigational reports paths, file names and call syntax.
func isNavigational(query string) bool {
	return pathSeparatorPattern.MatchString(query) ||
		fileExtensionPattern.MatchString(query) ||
		callPattern.MatchString(query)
}

func lowerTokens(query string) []string {
	return keywordTokenPattern.FindAllString(strings.ToLower(query), -1)
}

func containsAny(tokens []string, set map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// extractKeywords keeps tokens longer than two characters that are not stop words.
func extractKeywords(tokens []string) []string {
	keywords := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if len(t) <= 2 {
			continue
		}
		if _, stop := queryStopWords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		keywords = append(keywords, t)
	}
	return keywords
}
