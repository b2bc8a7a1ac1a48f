package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addFileAndCommit(t *testing.T, repo *git.Repository, repoPath, filename, content string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	full := filepath.Join(repoPath, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	_, err = wt.Add(filename)
	require.NoError(t, err)
	hash, err := wt.Commit("add "+filename, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

func TestHeadRevision(t *testing.T) {
	repoPath := t.TempDir()
	repo, err := git.PlainInit(repoPath, false)
	require.NoError(t, err)

	t.Run("No commits yet", func(t *testing.T) {
		rev, err := HeadRevision(repoPath)
		require.NoError(t, err)
		assert.Nil(t, rev)
	})

	hash := addFileAndCommit(t, repo, repoPath, "src/pkg/mod.py", "def f(): pass\n")

	t.Run("Resolved from a subdirectory", func(t *testing.T) {
		rev, err := HeadRevision(filepath.Join(repoPath, "src", "pkg"))
		require.NoError(t, err)
		require.NotNil(t, rev)
		assert.Equal(t, hash.String(), rev.Commit)
		assert.Equal(t, "master", rev.Branch)
		assert.False(t, rev.Dirty)
		assert.Len(t, rev.Short(), 12)
	})

	t.Run("Uncommitted change marks dirty", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(repoPath, "src", "pkg", "mod.py"), []byte("def g(): pass\n"), 0o644))
		rev, err := HeadRevision(repoPath)
		require.NoError(t, err)
		assert.True(t, rev.Dirty)
	})
}

func TestHeadRevision_NotARepository(t *testing.T) {
	rev, err := HeadRevision(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, rev)
	assert.Empty(t, rev.Short())
}
