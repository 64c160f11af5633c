package engine

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// gitTracker is a best-effort, snapshot-at-construction implementation of
// query.GitTracker: it shells out to `git ls-files` once and caches the
// tracked set, since the data model carries no VCS metadata of its own.
type gitTracker struct {
	tracked map[string]bool
}

// newGitTracker builds a tracker for root. If root is not a git work tree,
// or the git binary is unavailable, it returns a tracker with an empty set —
// the git_only filter then excludes everything, which is the safe default
// for "can't tell" rather than silently disabling the filter.
func newGitTracker(root string) *gitTracker {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", root, "ls-files", "-z")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return &gitTracker{tracked: map[string]bool{}}
	}

	tracked := make(map[string]bool)
	for _, entry := range strings.Split(out.String(), "\x00") {
		if entry == "" {
			continue
		}
		tracked[filepath.ToSlash(entry)] = true
	}
	return &gitTracker{tracked: tracked}
}

func (g *gitTracker) IsTracked(relPath string) bool {
	return g.tracked[filepath.ToSlash(relPath)]
}
