package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree materializes a map of relative path -> content under dir,
// creating parent directories as needed.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// collectPaths drains a scan into a sorted list of relative paths.
func collectPaths(t *testing.T, s *Scanner, opts *ScanOptions) []string {
	t.Helper()
	results, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)

	var paths []string
	for res := range results {
		require.NoError(t, res.Error)
		paths = append(paths, filepath.ToSlash(res.File.Path))
	}
	sort.Strings(paths)
	return paths
}

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	return s
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"src/app.py", "python"},
		{"types.pyi", "python"},
		{"index.js", "javascript"},
		{"component.jsx", "javascript"},
		{"module.mjs", "javascript"},
		{"server.ts", "typescript"},
		{"view.tsx", "typescript"},
		{"config.json", "json"},
		{"deploy.yaml", "yaml"},
		{"deploy.yml", "yaml"},
		{"README.md", "markdown"},
		{"page.mdx", "markdown"},
		{"binary.exe", ""},
		{"Makefile", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), "path=%s", tt.path)
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		language string
		want     FileType
	}{
		{"python", FileTypePython},
		{"markdown", FileTypeMarkdown},
		{"json", FileTypeJSON},
		{"yaml", FileTypeYAML},
		{"javascript", FileTypeJavaScript},
		{"typescript", FileTypeTypeScript},
		{"go", FileTypeOther},
		{"", FileTypeOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectFileType(tt.language), "language=%s", tt.language)
	}
}

func TestScan_EmitsAllIndexableFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":        "def main(): pass",
		"docs/README.md": "# Docs",
		"app.yaml":       "key: value",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"app.yaml", "docs/README.md", "main.py"}, paths)
}

func TestScan_SameTreeTwiceYieldsSameFileSet(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":       "pass",
		"b/c.md":     "# C",
		"b/d/e.json": "{}",
	})

	s := newTestScanner(t)
	first := collectPaths(t, s, &ScanOptions{RootDir: root})
	second := collectPaths(t, s, &ScanOptions{RootDir: root})

	assert.Equal(t, first, second)
}

func TestScan_PrunesDefaultExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":                      "pass",
		"node_modules/pkg/index.js":   "x",
		".git/config":                 "x",
		"__pycache__/app.cpython.pyc": "x",
		"venv/lib/site.py":            "x",
		"sub/node_modules/deep/a.js":  "x",
		"vendor/lib.go":               "x",
		"dist/bundle.js":              "x",
		"build/out.js":                "x",
		".ssh/known_hosts":            "x",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"app.py"}, paths)
}

func TestScan_SkipsSensitiveFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":          "pass",
		".env":            "SECRET=1",
		".env.production": "SECRET=2",
		"server.pem":      "cert",
		"deploy.key":      "key",
		"aws_credentials": "x",
		"passwords.txt":   "x",
		"id_rsa":          "x",
		".npmrc":          "registry",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"app.py"}, paths)
}

func TestScan_SkipsLockAndMinifiedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.js":            "let x = 1",
		"app.min.js":        "let x=1",
		"style.min.css":     "a{}",
		"package-lock.json": "{}",
		"yarn.lock":         "x",
		"go.sum":            "module v0.0.0\n",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"app.js"}, paths)
}

func TestScan_CustomExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.py":         "pass",
		"scratch/junk.py": "pass",
		"notes.tmp.md":    "# tmp",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:         root,
		ExcludePatterns: []string{"scratch/**", "*.tmp.md"},
	})

	assert.Equal(t, []string{"keep.py"}, paths)
}

func TestScan_IncludePatternsNarrowTheSet(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":  "pass",
		"b.md":  "# B",
		"c.txt": "plain",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:         root,
		IncludePatterns: []string{"*.py", "*.md"},
	})

	assert.Equal(t, []string{"a.py", "b.md"}, paths)
}

func TestScan_RespectsRootGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "ignored.py\nlogs/\n",
		"kept.py":    "pass",
		"ignored.py": "pass",
		"logs/x.md":  "# log",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:          root,
		RespectGitignore: true,
	})

	assert.Contains(t, paths, "kept.py")
	assert.NotContains(t, paths, "ignored.py")
	assert.NotContains(t, paths, "logs/x.md")
}

func TestScan_RespectsNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"sub/.gitignore": "local.py\n",
		"sub/local.py":   "pass",
		"sub/shared.py":  "pass",
		"local.py":       "pass", // same name outside sub/ is not ignored
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:          root,
		RespectGitignore: true,
	})

	assert.Contains(t, paths, "local.py")
	assert.Contains(t, paths, "sub/shared.py")
	assert.NotContains(t, paths, "sub/local.py")
}

func TestScan_GitignoreNegationReincludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "*.md\n!KEEP.md\n",
		"a.md":       "# A",
		"KEEP.md":    "# Keep",
		"code.py":    "pass",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:          root,
		RespectGitignore: true,
	})

	assert.NotContains(t, paths, "a.md")
	assert.Contains(t, paths, "KEEP.md")
	assert.Contains(t, paths, "code.py")
}

func TestScan_GitignoreIgnoredWhenDisabled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "ignored.py\n",
		"ignored.py": "pass",
	})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Contains(t, paths, "ignored.py")
}

func TestScan_SkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"text.py": "pass"})
	binary := append([]byte("BM"), 0x00, 0x01, 0x02)
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.py"), binary, 0o644))

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"text.py"}, paths)
}

func TestScan_SkipsFilesOverMaxSize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"small.py": "pass"})
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.py"), big, 0o644))

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:     root,
		MaxFileSize: 1024,
	})

	assert.Equal(t, []string{"small.py"}, paths)
}

func TestScan_FlagsGeneratedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"gen.py":  "# Generated by protoc\npass",
		"hand.py": "pass",
	})

	results, err := newTestScanner(t).Scan(context.Background(), &ScanOptions{RootDir: root})
	require.NoError(t, err)

	generated := map[string]bool{}
	for res := range results {
		require.NoError(t, res.Error)
		generated[res.File.Path] = res.File.IsGenerated
	}

	assert.True(t, generated["gen.py"])
	assert.False(t, generated["hand.py"])
}

func TestScan_ReportsFileMetadata(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pkg/module.py": "def f(): pass"})

	results, err := newTestScanner(t).Scan(context.Background(), &ScanOptions{RootDir: root})
	require.NoError(t, err)

	res := <-results
	require.NoError(t, res.Error)
	fi := res.File

	assert.Equal(t, "pkg/module.py", filepath.ToSlash(fi.Path))
	assert.Equal(t, filepath.Join(root, "pkg", "module.py"), fi.AbsPath)
	assert.Equal(t, int64(len("def f(): pass")), fi.Size)
	assert.Equal(t, FileTypePython, fi.FileType)
	assert.Equal(t, "python", fi.Language)
	assert.WithinDuration(t, time.Now(), fi.ModTime, time.Minute)
}

func TestScan_UnicodePathsPreserved(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"日本語/ファイル.py": "pass"})

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"日本語/ファイル.py"}, paths)
}

func TestScan_SymlinksSkippedByDefault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real.py": "pass"})
	require.NoError(t, os.Symlink(filepath.Join(root, "real.py"), filepath.Join(root, "link.py")))

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"real.py"}, paths)
}

func TestScan_FollowedSymlinkTargetVisitedOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real.py": "pass"})
	require.NoError(t, os.Symlink(filepath.Join(root, "real.py"), filepath.Join(root, "one.py")))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.py"), filepath.Join(root, "two.py")))

	paths := collectPaths(t, newTestScanner(t), &ScanOptions{
		RootDir:        root,
		FollowSymlinks: true,
	})

	// real.py plus exactly one of the two links pointing at it.
	assert.Len(t, paths, 2)
	assert.Contains(t, paths, "real.py")
}

func TestScan_EmptyDirectoryYieldsNothing(t *testing.T) {
	paths := collectPaths(t, newTestScanner(t), &ScanOptions{RootDir: t.TempDir()})
	assert.Empty(t, paths)
}

func TestScan_NonexistentRootFails(t *testing.T) {
	_, err := newTestScanner(t).Scan(context.Background(), &ScanOptions{
		RootDir: filepath.Join(t.TempDir(), "missing"),
	})
	assert.Error(t, err)
}

func TestScan_CancelledContextStopsStream(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[fmt.Sprintf("d/f%03d.py", i)] = "pass"
	}
	writeTree(t, root, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newTestScanner(t).Scan(ctx, &ScanOptions{RootDir: root})
	require.NoError(t, err)

	count := 0
	for range results {
		count++
	}
	// The stream must terminate; a pre-cancelled context emits at most the
	// buffered handful of results.
	assert.Less(t, count, 200)
}

func TestInvalidateGitignoreCache_PicksUpRuleChanges(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "a.py\n",
		"a.py":       "pass",
		"b.py":       "pass",
	})

	s := newTestScanner(t)
	opts := &ScanOptions{RootDir: root, RespectGitignore: true}

	assert.NotContains(t, collectPaths(t, s, opts), "a.py")

	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("b.py\n"), 0o644))
	s.InvalidateGitignoreCache()

	paths := collectPaths(t, s, opts)
	assert.Contains(t, paths, "a.py")
	assert.NotContains(t, paths, "b.py")
}

func TestMatchDirPattern(t *testing.T) {
	tests := []struct {
		relPath string
		pattern string
		want    bool
	}{
		{"node_modules", "**/node_modules/**", true},
		{"a/b/node_modules", "**/node_modules/**", true},
		{"node_modules_backup", "**/node_modules/**", false},
		{"dist", "dist/**", true},
		{"dist/sub", "dist/**", true},
		{"distro", "dist/**", false},
		{"src", "src", true},
		{"src/sub", "src", true},
		{"source", "src", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchDirPattern(tt.relPath, tt.pattern),
			"relPath=%s pattern=%s", tt.relPath, tt.pattern)
	}
}

func TestMatchFilePattern(t *testing.T) {
	tests := []struct {
		base    string
		relPath string
		pattern string
		want    bool
	}{
		{"app.min.js", "static/app.min.js", "**/*.min.js", true},
		{"app.js", "static/app.js", "**/*.min.js", false},
		{".env", ".env", ".env", true},
		{".env.local", ".env.local", ".env.*", true},
		{"server.pem", "certs/server.pem", "*.pem", true},
		{"aws_credentials", "aws_credentials", "*credentials*", true},
		{"id_rsa", ".keys/id_rsa", "id_rsa", true},
		{"junk.py", "scratch/junk.py", "scratch/**", true},
		{"keep.py", "keep.py", "scratch/**", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchFilePattern(tt.base, tt.relPath, tt.pattern),
			"base=%s relPath=%s pattern=%s", tt.base, tt.relPath, tt.pattern)
	}
}
