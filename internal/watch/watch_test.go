package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipVenv(name string) bool { return name == "venv" || name == "__pycache__" }

func TestWatcher_Relevant(t *testing.T) {
	root := t.TempDir()
	w := New(root, time.Millisecond, []string{".py", ".ipynb"}, skipVenv, nil)

	tests := map[string]bool{
		filepath.Join(root, "pkg", "mod.py"):               true,
		filepath.Join(root, "analysis.ipynb"):              true,
		filepath.Join(root, "notes.txt"):                   false,
		filepath.Join(root, "pkg", ".mod.py.swp"):          false,
		filepath.Join(root, "pkg", "mod.py~"):              false,
		filepath.Join(root, "venv", "lib", "site.py"):      false,
		filepath.Join(root, "pkg", "__pycache__", "m.py"):  false,
		filepath.Join(root, "pkg", "venvironment", "m.py"): true,
	}
	for path, want := range tests {
		assert.Equal(t, want, w.Relevant(path), path)
	}
}

func TestWatcher_RunsOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0755))

	var runs atomic.Int32
	w := New(root, 50*time.Millisecond, []string{".py"}, skipVenv, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("failures do not stop watching")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond, "initial pass")

	// A burst of writes collapses into one pass.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "mod.py"), []byte("x = 1\n"), 0644))
	}
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 10*time.Millisecond, "pass after change")
	time.Sleep(200 * time.Millisecond)
	settled := runs.Load()
	assert.Less(t, settled, int32(4), "a burst is debounced")

	// Irrelevant files do not trigger.
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "notes.txt"), []byte("hi"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), time.Millisecond, []string{".py"}, skipVenv, func(context.Context) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}
