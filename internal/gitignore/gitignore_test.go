package gitignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matcherWith builds a Matcher from root-scoped pattern lines.
func matcherWith(patterns ...string) *Matcher {
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

func TestMatch_PatternTable(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		// plain filenames match at any depth
		{"exact name", "foo.txt", "foo.txt", false, true},
		{"exact name nested", "foo.txt", "a/b/foo.txt", false, true},
		{"different name", "foo.txt", "bar.txt", false, false},

		// single-star wildcards stop at slashes
		{"extension glob", "*.log", "error.log", false, true},
		{"extension glob nested", "*.log", "logs/error.log", false, true},
		{"extension glob miss", "*.log", "error.txt", false, false},
		{"prefix glob", "test*", "test_util.py", false, true},
		{"question mark", "file?.txt", "file1.txt", false, true},
		{"question mark no slash", "a?c", "a/c", false, false},

		// double-star spans directories
		{"double star prefix", "**/build", "a/b/build", true, true},
		{"double star infix", "docs/**/draft.md", "docs/2024/q1/draft.md", false, true},
		{"double star suffix", "logs/**", "logs/app/today.log", false, true},

		// directory-only rules match the dir and its contents
		{"dir rule on dir", "temp/", "temp", true, true},
		{"dir rule on file inside", "temp/", "temp/file.go", false, true},
		{"dir rule on plain file", "temp/", "temp", false, false},
		{"dir rule nested", "temp/", "src/temp/file.go", false, true},

		// anchored rules only match from the root
		{"anchored dir", "/build/", "build", true, true},
		{"anchored dir contents", "/build/", "build/out.js", false, true},
		{"anchored dir nested miss", "/build/", "src/build/out.js", false, false},
		{"internal slash anchors", "doc/frotz", "doc/frotz", false, true},
		{"internal slash anchored miss", "doc/frotz", "sub/doc/frotz", false, false},

		// character classes
		{"char class", "file[0-9].txt", "file5.txt", false, true},
		{"char class miss", "file[0-9].txt", "fileA.txt", false, false},

		// escapes
		{"escaped hash", `\#notes.md`, "#notes.md", false, true},
		{"escaped bang", `\!important`, "!important", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matcherWith(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatch_CommentsAndBlanksAreSkipped(t *testing.T) {
	m := matcherWith("# a comment", "", "   ", "*.log")

	assert.True(t, m.Match("x.log", false))
	assert.False(t, m.Match("# a comment", false))
}

func TestMatch_LastMatchingRuleWins(t *testing.T) {
	m := matcherWith("*.log", "!keep.log")

	assert.True(t, m.Match("error.log", false))
	assert.False(t, m.Match("keep.log", false))

	// Re-ignoring after a negation flips it back.
	m.AddPattern("keep.log")
	assert.True(t, m.Match("keep.log", false))
}

func TestMatch_ScopedRulesApplyOnlyUnderTheirBase(t *testing.T) {
	m := New()
	m.AddPatternWithBase("secret.txt", "sub")

	assert.True(t, m.Match("sub/secret.txt", false))
	assert.True(t, m.Match("sub/deeper/secret.txt", false))
	assert.False(t, m.Match("secret.txt", false))
	assert.False(t, m.Match("other/secret.txt", false))
}

func TestAddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	content := "*.log\n# comment\n!keep.log\nbuild/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, ""))

	assert.True(t, m.Match("a.log", false))
	assert.False(t, m.Match("keep.log", false))
	assert.True(t, m.Match("build/out.js", false))
}

func TestAddFromFile_MissingFileErrors(t *testing.T) {
	m := New()
	err := m.AddFromFile(filepath.Join(t.TempDir(), "absent"), "")
	assert.Error(t, err)
}

func TestMatch_WindowsSeparatorsNormalized(t *testing.T) {
	m := matcherWith("build/")
	assert.True(t, m.Match(`build\out.js`, false))
}

func TestMatch_ConcurrentUse(t *testing.T) {
	m := matcherWith("*.log")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Match("x.log", false)
			}
		}()
	}
	wg.Wait()
}

func TestMatch_TypicalProjectIgnoreFile(t *testing.T) {
	m := matcherWith(
		"node_modules/",
		"dist/",
		"*.pyc",
		"__pycache__/",
		".env",
		"!.env.example",
		"/coverage/",
	)

	ignored := []struct {
		path  string
		isDir bool
	}{
		{"node_modules", true},
		{"node_modules/react/index.js", false},
		{"pkg/node_modules/left-pad/index.js", false},
		{"dist/bundle.js", false},
		{"app/__pycache__/mod.cpython-312.pyc", false},
		{"app/mod.pyc", false},
		{".env", false},
		{"coverage/lcov.info", false},
	}
	for _, c := range ignored {
		assert.True(t, m.Match(c.path, c.isDir), "expected %s to be ignored", c.path)
	}

	kept := []string{
		"src/app.py",
		".env.example",
		"sub/coverage/lcov.info", // /coverage/ is anchored
	}
	for _, p := range kept {
		assert.False(t, m.Match(p, false), "expected %s to be kept", p)
	}
}
