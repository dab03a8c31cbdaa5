// Package gitignore matches slash-separated relative paths against
// gitignore-style pattern files.
//
// Supported syntax: comments, blank lines, negation (!), directory-only
// patterns (trailing /), anchoring (leading or inner /), the * ? and [...]
// wildcards within one path segment, and ** across segments. Escaped
// leading \# and \! are literal.
package gitignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type rule struct {
	segments []string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher holds rules in file order; the last matching rule wins.
// A Matcher is immutable after loading and safe for concurrent use.
type Matcher struct {
	rules []rule
}

// New creates a matcher from pattern lines.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		m.add(line)
	}
	return m
}

// Load reads the named pattern files from root in order. Missing files are
// skipped.
func Load(root string, names ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, name := range names {
		f, err := os.Open(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		err = m.read(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return m, nil
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

func (m *Matcher) read(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.add(sc.Text())
	}
	return sc.Err()
}

func (m *Matcher) add(line string) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasSuffix(line, `\ `) {
		line = strings.TrimRight(line, " \t")
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var r rule
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}
	line = strings.ReplaceAll(line, `\ `, " ")

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return
	}

	r.segments = strings.Split(line, "/")
	m.rules = append(m.rules, r)
}

// Ignored reports whether rel, or any directory above it, is excluded.
// rel is relative to the directory the patterns were loaded from.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	if m.Len() == 0 {
		return false
	}
	rel = strings.Trim(path.Clean(filepath.ToSlash(rel)), "/")
	if rel == "." || rel == "" {
		return false
	}

	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.match(parts[:i], true) {
			return true
		}
	}
	return m.match(parts, isDir)
}

func (m *Matcher) match(parts []string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.matches(parts) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(parts []string) bool {
	if !r.anchored {
		ok, _ := path.Match(r.segments[0], parts[len(parts)-1])
		return ok
	}
	return matchSegments(r.segments, parts)
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	return err == nil && ok && matchSegments(pattern[1:], parts[1:])
}
