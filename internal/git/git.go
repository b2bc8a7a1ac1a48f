package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Revision identifies the checked-out state of the repository holding a source tree.
type Revision struct {
	Commit string
	Branch string // empty when HEAD is detached
	Dirty  bool   // uncommitted changes in the worktree
}

// Short returns the abbreviated commit hash.
func (r *Revision) Short() string {
	if r == nil {
		return ""
	}
	if len(r.Commit) > 12 {
		return r.Commit[:12]
	}
	return r.Commit
}

// HeadRevision resolves HEAD for the repository containing path, searching
// parent directories. A path outside any repository, or a repository without
// commits, yields nil and no error.
func HeadRevision(path string) (*Revision, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	rev := &Revision{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no worktree to be dirty.
		return rev, nil
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}
	rev.Dirty = !status.IsClean()
	return rev, nil
}
