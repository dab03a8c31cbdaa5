// Package docs feeds markdown documentation into project memory: files are
// split into heading sections, each stored as one documentation row, and a
// watcher re-indexes files as they change.
package docs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxSectionRunes bounds one stored section. Longer sections are split on
// paragraph boundaries into numbered parts.
const MaxSectionRunes = 6000

var (
	headingPattern     = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
	fencePattern       = regexp.MustCompile("^\\s*(```|~~~)")
)

// Section is one heading and the text under it.
type Section struct {
	// Title is the heading path, e.g. "Install > From source". It is unique
	// within a file.
	Title   string
	Level   int
	Content string
	// Line is the 1-based line of the heading.
	Line int
}

// SplitSections splits markdown into heading sections. Text before the first
// heading becomes a section titled after the file. Frontmatter is dropped,
// headings inside fenced code blocks are ignored and sections holding only a
// heading are skipped.
func SplitSections(path string, content []byte) []Section {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lineOffset := 0
	if m := frontmatterPattern.FindString(text); m != "" {
		lineOffset = strings.Count(m, "\n")
		text = text[len(m):]
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		sections []Section
		stack    [6]string
		current  = Section{Title: fileTitle(path), Line: lineOffset + 1}
		body     strings.Builder
		inFence  bool
	)
	flush := func() {
		current.Content = strings.TrimSpace(body.String())
		if current.Content != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for i, line := range strings.Split(text, "\n") {
		if fencePattern.MatchString(line) {
			inFence = !inFence
		}
		m := headingPattern.FindStringSubmatch(line)
		if inFence || m == nil {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}

		flush()
		level := len(m[1])
		stack[level-1] = strings.TrimSpace(m[2])
		for j := level; j < len(stack); j++ {
			stack[j] = ""
		}
		var parts []string
		for _, h := range stack[:level] {
			if h != "" {
				parts = append(parts, h)
			}
		}
		current = Section{Title: strings.Join(parts, " > "), Level: level, Line: lineOffset + i + 1}
		// The heading stays in the body so each section reads on its own.
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()

	sections = dropHeadingOnly(sections)
	return uniqueTitles(splitLarge(sections))
}

func fileTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// dropHeadingOnly removes sections whose only line is their heading.
func dropHeadingOnly(sections []Section) []Section {
	out := sections[:0]
	for _, s := range sections {
		if s.Level > 0 && !strings.Contains(s.Content, "\n") {
			continue
		}
		out = append(out, s)
	}
	return out
}

// uniqueTitles suffixes repeated titles with their occurrence number.
func uniqueTitles(sections []Section) []Section {
	seen := make(map[string]int, len(sections))
	for i := range sections {
		seen[sections[i].Title]++
		if n := seen[sections[i].Title]; n > 1 {
			sections[i].Title = fmt.Sprintf("%s (%d)", sections[i].Title, n)
		}
	}
	return sections
}

// splitLarge breaks sections over MaxSectionRunes into parts.
func splitLarge(sections []Section) []Section {
	var out []Section
	for _, s := range sections {
		if len([]rune(s.Content)) <= MaxSectionRunes {
			out = append(out, s)
			continue
		}
		for i, part := range packParagraphs(paragraphs(s.Content), MaxSectionRunes) {
			p := s
			p.Content = part
			if i > 0 {
				p.Title = fmt.Sprintf("%s (part %d)", s.Title, i+1)
			}
			out = append(out, p)
		}
	}
	return out
}

// paragraphs splits on blank lines, keeping fenced code blocks whole.
func paragraphs(content string) []string {
	var (
		out     []string
		pending strings.Builder
		inFence bool
	)
	for _, para := range strings.Split(content, "\n\n") {
		if pending.Len() > 0 {
			pending.WriteString("\n\n")
		}
		pending.WriteString(para)
		if strings.Count(para, "```")%2 == 1 {
			inFence = !inFence
		}
		if inFence {
			continue
		}
		if p := strings.TrimSpace(pending.String()); p != "" {
			out = append(out, p)
		}
		pending.Reset()
	}
	if p := strings.TrimSpace(pending.String()); p != "" {
		out = append(out, p)
	}
	return out
}

// packParagraphs greedily joins paragraphs into parts of at most limit runes.
// A single paragraph over the limit becomes its own part.
func packParagraphs(paras []string, limit int) []string {
	var (
		parts []string
		cur   strings.Builder
		size  int
	)
	for _, p := range paras {
		n := len([]rune(p))
		if size > 0 && size+2+n > limit {
			parts = append(parts, cur.String())
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteString("\n\n")
			size += 2
		}
		cur.WriteString(p)
		size += n
	}
	if size > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
