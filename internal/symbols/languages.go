// Package symbols extracts declared identifiers from source code with
// tree-sitter. Code patterns store the names so a keyword search for a
// literal symbol finds the fragment that declares it.
package symbols

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Kind classifies a declaration.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
)

// grammar binds a parseable language to its declaration node types.
type grammar struct {
	lang  *sitter.Language
	kinds map[string]Kind
}

var tsKinds = map[string]Kind{
	"function_declaration":   KindFunction,
	"method_definition":      KindMethod,
	"class_declaration":      KindClass,
	"interface_declaration":  KindInterface,
	"type_alias_declaration": KindType,
	"lexical_declaration":    KindConstant,
	"variable_declaration":   KindVariable,
}

var jsKinds = map[string]Kind{
	"function_declaration": KindFunction,
	"method_definition":    KindMethod,
	"class_declaration":    KindClass,
	"lexical_declaration":  KindConstant,
	"variable_declaration": KindVariable,
}

var grammars = map[string]grammar{
	"go": {lang: golang.GetLanguage(), kinds: map[string]Kind{
		"function_declaration": KindFunction,
		"method_declaration":   KindMethod,
		"type_declaration":     KindType,
		"const_declaration":    KindConstant,
		"var_declaration":      KindVariable,
	}},
	"typescript": {lang: typescript.GetLanguage(), kinds: tsKinds},
	"tsx":        {lang: tsx.GetLanguage(), kinds: tsKinds},
	"javascript": {lang: javascript.GetLanguage(), kinds: jsKinds},
	"python": {lang: python.GetLanguage(), kinds: map[string]Kind{
		"function_definition": KindFunction,
		"class_definition":    KindClass,
	}},
}

var extLanguages = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "tsx",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".sql":   "sql",
	".sh":    "shell",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
}

// DetectLanguage maps a file path to a language name by extension, or ""
// when the extension is unknown.
func DetectLanguage(path string) string {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether language can be parsed for symbols.
func Supported(language string) bool {
	_, ok := grammars[language]
	return ok
}
