package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Ignored(t *testing.T) {
	tests := []struct {
		name    string
		pattern []string
		path    string
		isDir   bool
		want    bool
	}{
		{"basename anywhere", []string{"*.log"}, "a/b/debug.log", false, true},
		{"basename miss", []string{"*.log"}, "a/b/debug.md", false, false},
		{"question mark", []string{"note?.md"}, "note1.md", false, true},
		{"char class", []string{"v[0-9].md"}, "docs/v2.md", false, true},
		{"anchored root", []string{"/build"}, "build", true, true},
		{"anchored not nested", []string{"/build"}, "src/build", true, false},
		{"inner slash anchors", []string{"docs/drafts"}, "docs/drafts/a.md", false, true},
		{"inner slash not nested", []string{"docs/drafts"}, "x/docs/drafts", true, false},
		{"dir only on dir", []string{"tmp/"}, "tmp", true, true},
		{"dir only skips file", []string{"tmp/"}, "tmp", false, false},
		{"dir only covers children", []string{"tmp/"}, "a/tmp/x.md", false, true},
		{"double star prefix", []string{"**/generated"}, "a/b/generated/x.md", false, true},
		{"double star middle", []string{"docs/**/old.md"}, "docs/a/b/old.md", false, true},
		{"double star middle zero", []string{"docs/**/old.md"}, "docs/old.md", false, true},
		{"double star suffix", []string{"vendor/**"}, "vendor/x/y.md", false, true},
		{"negation", []string{"*.md", "!README.md"}, "README.md", false, false},
		{"negation order", []string{"!README.md", "*.md"}, "README.md", false, true},
		{"escaped hash", []string{`\#notes.md`}, "#notes.md", false, true},
		{"escaped bang", []string{`\!x.md`}, "!x.md", false, true},
		{"comment", []string{"# *.md"}, "a.md", false, false},
		{"empty path", []string{"*"}, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.pattern...)

			assert.Equal(t, tt.want, m.Ignored(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_ParentCannotBeReincluded(t *testing.T) {
	m := New("drafts/", "!drafts/keep.md")

	assert.True(t, m.Ignored("drafts/keep.md", false))
}

func TestMatcher_NilAndEmpty(t *testing.T) {
	var m *Matcher

	assert.False(t, m.Ignored("a.md", false))
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, New("", "   ", "# c").Len())
}

func TestLoad(t *testing.T) {
	// Given: two pattern files where the second re-includes a path
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.md\n\n# docs\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".amanmemignore"), []byte("!guide.md\r\n"), 0o644))

	// When: loading both plus a missing file
	m, err := Load(root, ".gitignore", "missing", ".amanmemignore")

	// Then: rules apply in file order
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Ignored("notes.md", false))
	assert.False(t, m.Ignored("guide.md", false))
}

func TestLoad_Unreadable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".gitignore"), 0o755))

	_, err := Load(root, ".gitignore")

	assert.Error(t, err)
}
