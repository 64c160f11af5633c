// Package scanner discovers indexable files in a project, respecting
// exclusion patterns, .gitignore rules, and sensitive file patterns.
package scanner

import "time"

// FileType is the closed file-type vocabulary used by the metadata store
// and query filters. It is distinct from Language, the broader chunker-
// internal parser selector (Language adds "go" so the engine can index
// itself; FileType does not).
type FileType string

const (
	FileTypePython     FileType = "python"
	FileTypeMarkdown   FileType = "markdown"
	FileTypeJSON       FileType = "json"
	FileTypeYAML       FileType = "yaml"
	FileTypeJavaScript FileType = "javascript"
	FileTypeTypeScript FileType = "typescript"
	FileTypeOther      FileType = "other"
)

// FileInfo describes a file discovered by the scanner.
type FileInfo struct {
	Path        string    // Relative path to project root
	AbsPath     string    // Absolute path
	Size        int64     // File size in bytes
	ModTime     time.Time // Last modification time
	FileType    FileType  // closed vocabulary for filtering
	Language    string    // broader chunker parser selector (go, python, typescript, ...)
	IsGenerated bool      // detected as generated file
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// RootDir is the project root directory to scan.
	RootDir string

	// IncludePatterns specifies patterns to include (empty = all).
	IncludePatterns []string

	// ExcludePatterns specifies patterns to exclude.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing.
	RespectGitignore bool

	// Workers sizes the result channel buffer (Workers*10). The walk itself
	// runs in a single goroutine.
	Workers int

	// MaxFileSize is the maximum file size to include in bytes (0 = 10MB default).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	// When enabled, symlink targets are deduplicated by (device, inode) to
	// guard against cycles.
	FollowSymlinks bool

	// ProgressFunc is a progress callback slot; Scan does not call it.
	ProgressFunc func(scanned, total int)
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// languageMap maps file extensions/filenames to chunker parser languages.
// This is broader than FileType: it includes every language the tree-sitter
// registry can parse, since the chunker needs an AST strategy for "go" even
// though "go" has no FileType value of its own.
var languageMap = map[string]string{
	".go":  "go",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",

	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
}

// fileTypeMap maps a detected language to the closed FileType
// vocabulary. Anything not listed here falls back to FileTypeOther.
var fileTypeMap = map[string]FileType{
	"python":     FileTypePython,
	"markdown":   FileTypeMarkdown,
	"json":       FileTypeJSON,
	"yaml":       FileTypeYAML,
	"javascript": FileTypeJavaScript,
	"typescript": FileTypeTypeScript,
}

// DetectLanguage detects the chunker parser language from a file path.
// Returns "" if the file has no recognized language.
func DetectLanguage(path string) string {
	base := baseName(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}

	ext := extension(path)
	if lang, ok := languageMap[ext]; ok {
		return lang
	}

	return ""
}

// DetectFileType maps a language to the closed FileType vocabulary.
func DetectFileType(language string) FileType {
	if ft, ok := fileTypeMap[language]; ok {
		return ft
	}
	return FileTypeOther
}

// baseName returns the file name from a path.
func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// extension returns the file extension from a path (including the dot).
func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
