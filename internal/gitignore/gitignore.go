// Package gitignore compiles .gitignore patterns and answers whether a
// path should be ignored. Pattern semantics follow
// https://git-scm.com/docs/gitignore: later rules win, `!` re-includes,
// a trailing slash restricts a rule to directories (and everything under
// them), and a rule containing a slash anchors at its .gitignore's
// directory.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled ignore rules. Safe for concurrent use: the scanner
// shares cached matchers across its walk goroutines.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	source   string         // pattern as written, for debugging
	re       *regexp.Regexp // compiled form
	negated  bool
	dirOnly  bool
	anchored bool
	base     string // directory of the owning .gitignore, "" for the root one
}

// New returns a Matcher with no rules; every Match is false until patterns
// are added.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern compiles one pattern line as if it appeared in the root
// .gitignore.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase compiles one pattern line scoped to base, the
// root-relative directory of the .gitignore it came from.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	// A trailing "\ " keeps its space through trimming.
	keepTrailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)

	if pattern == "" {
		return
	}
	if strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`) {
		return
	}

	r := rule{source: pattern, base: base}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
		r.source = pattern
	case strings.HasPrefix(pattern, "!"):
		r.negated = true
		pattern = pattern[1:]
	}

	if keepTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// "doc/frotz" means /doc/frotz relative to the .gitignore, never
	// **/doc/frotz.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	r.re = regexp.MustCompile("^" + translate(pattern) + "$")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile compiles every pattern line of the .gitignore at path, scoped
// to base.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	lines := bufio.NewScanner(f)
	for lines.Scan() {
		m.AddPatternWithBase(lines.Text(), base)
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("read gitignore: %w", err)
	}
	return nil
}

// Match reports whether path (root-relative, slash or backslash separators)
// should be ignored. Rules are evaluated in order; the last matching rule
// decides, so a later `!` re-include overrides an earlier ignore.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.ReplaceAll(filepath.ToSlash(path), `\`, "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.applies(path, isDir) {
			ignored = !r.negated
		}
	}
	return ignored
}

// applies reports whether a single rule matches path.
func (r rule) applies(path string, isDir bool) bool {
	if r.base != "" {
		// A scoped rule never reaches outside its own directory.
		switch {
		case path == r.base:
			path = filepath.Base(path)
		case strings.HasPrefix(path, r.base+"/"):
			path = strings.TrimPrefix(path, r.base+"/")
		default:
			return false
		}
	}

	segments := strings.Split(path, "/")

	if r.anchored {
		if r.re.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		if r.dirOnly {
			// Files under an anchored ignored directory are ignored too.
			for i := range segments[:len(segments)-1] {
				if r.re.MatchString(strings.Join(segments[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		// "temp/" matches a temp directory at any depth and everything
		// inside it.
		for i, seg := range segments {
			if r.re.MatchString(seg) {
				if i == len(segments)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.re.MatchString(segments[len(segments)-1]) {
		return true
	}
	if r.re.MatchString(path) {
		return true
	}
	for _, seg := range segments {
		if r.re.MatchString(seg) {
			return true
		}
	}
	return false
}

// translate converts one gitignore pattern to regexp source. `*` never
// crosses a slash, `**/` spans any number of directories, `?` is a single
// non-slash character, and character classes pass through.
func translate(pattern string) string {
	var out strings.Builder

	for i := 0; i < len(pattern); {
		switch c := pattern[i]; c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				out.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				out.WriteString(".*")
				i += 2
				continue
			}
			out.WriteString("[^/]*")
			i++
		case '?':
			out.WriteString("[^/]")
			i++
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end > 0 {
				out.WriteString(pattern[i : i+end+1])
				i += end + 1
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				out.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}

	return out.String()
}
