package symbols

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Symbol is a named declaration.
type Symbol struct {
	Name string
	Kind Kind
	// Line is 1-based.
	Line int
}

// Extractor parses source and lists its declarations. A tree-sitter
// parser is not safe for concurrent use, so each call builds its own.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the declarations in source. Unsupported languages yield
// no symbols and no error.
func (e *Extractor) Extract(ctx context.Context, language string, source []byte) ([]Symbol, error) {
	g, ok := grammars[language]
	if !ok || len(source) == 0 {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", language, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s source: nil tree", language)
	}
	defer tree.Close()

	w := walker{source: source, kinds: g.kinds}
	w.walk(tree.RootNode(), nil)
	return w.symbols, nil
}

// Names extracts the distinct symbol names of a source fragment in
// declaration order. Failures yield no names.
func (e *Extractor) Names(ctx context.Context, language string, source []byte) []string {
	syms, err := e.Extract(ctx, language, source)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{}, len(syms))
	var names []string
	for _, s := range syms {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}
	return names
}

type walker struct {
	source  []byte
	kinds   map[string]Kind
	symbols []Symbol
}

func (w *walker) walk(n, parent *sitter.Node) {
	if n == nil || n.IsNull() {
		return
	}
	if kind, ok := w.kinds[n.Type()]; ok {
		w.declare(n, parent, kind)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), n)
	}
}

func (w *walker) add(name *sitter.Node, kind Kind, at *sitter.Node) {
	if name == nil || name.IsNull() {
		return
	}
	if text := name.Content(w.source); text != "" {
		w.symbols = append(w.symbols, Symbol{Name: text, Kind: kind, Line: int(at.StartPoint().Row) + 1})
	}
}

func (w *walker) declare(n, parent *sitter.Node, kind Kind) {
	switch n.Type() {
	case "type_declaration":
		// type ( A struct{}; B int ) declares one name per type_spec.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if t := spec.Type(); t == "type_spec" || t == "type_alias" {
				specKind := kind
				if body := spec.ChildByFieldName("type"); body != nil && body.Type() == "interface_type" {
					specKind = KindInterface
				}
				w.add(spec.ChildByFieldName("name"), specKind, spec)
			}
		}

	case "const_declaration", "var_declaration":
		if !topLevel(parent) {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if t := spec.Type(); t == "const_spec" || t == "var_spec" {
				w.add(spec.ChildByFieldName("name"), kind, spec)
			}
		}

	case "lexical_declaration", "variable_declaration":
		if !topLevel(parent) {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			name := decl.ChildByFieldName("name")
			if name == nil || name.Type() != "identifier" {
				continue
			}
			declKind := kind
			if value := decl.ChildByFieldName("value"); value != nil {
				switch value.Type() {
				case "arrow_function", "function", "function_expression":
					declKind = KindFunction
				}
			}
			w.add(name, declKind, decl)
		}

	case "function_definition":
		// Python methods are functions nested in a class body.
		if parent != nil && parent.Type() == "block" {
			if gp := parent.Parent(); gp != nil && gp.Type() == "class_definition" {
				kind = KindMethod
			}
		}
		w.add(n.ChildByFieldName("name"), kind, n)

	default:
		w.add(n.ChildByFieldName("name"), kind, n)
	}
}

// topLevel reports whether a declaration sits at file scope.
func topLevel(parent *sitter.Node) bool {
	if parent == nil {
		return true
	}
	switch parent.Type() {
	case "source_file", "program", "module", "export_statement":
		return true
	}
	return false
}
