// Package git provides an abstraction for git operations.
package git

import "context"

// Git defines the git operations needed to describe working tree state.
type Git interface {
	// IsClean returns true if there are no uncommitted changes in dir.
	IsClean(ctx context.Context, dir string) (bool, error)
	// Branch returns the current branch name, or short commit SHA if in detached HEAD state.
	Branch(ctx context.Context, dir string) (string, error)
	// DiffStats returns the number of lines added and deleted compared to HEAD.
	DiffStats(ctx context.Context, dir string) (additions, deletions int, err error)
	// ChangedFiles returns the relative paths of all files with uncommitted changes.
	ChangedFiles(ctx context.Context, dir string) ([]string, error)
}
