// Package notebook converts Jupyter notebooks to Markdown with an external
// nbconvert installation.
package notebook

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "py2md/internal/errors"
	"py2md/internal/logging"
)

// Converter runs "<command> nbconvert --to markdown" once per notebook.
type Converter struct {
	command string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewConverter(command string, timeout time.Duration) *Converter {
	return &Converter{
		command: command,
		timeout: timeout,
		logger:  logging.GetLogger("notebook"),
	}
}

// Convert writes <outDir>/<stem>.md from the notebook and returns its path.
// Every failure, including a timeout, is an IO error naming the notebook.
func (c *Converter) Convert(ctx context.Context, notebookPath, outDir, stem string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", perrors.Wrap(err, perrors.ErrIO, outDir, "failed to create output directory")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"nbconvert", "--to", "markdown", notebookPath, "--output", stem, "--output-dir", outDir}
	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug().Str("command", c.command).Strs("args", args).Msg("Converting notebook")
	err := cmd.Run()
	if stderr.Len() > 0 {
		c.logger.Debug().Str("stderr", stderr.String()).Str("notebook", notebookPath).Msg("nbconvert stderr")
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", perrors.Newf(perrors.ErrIO, notebookPath, "notebook conversion timed out after %s", c.timeout)
		}
		msg := "notebook conversion failed"
		if tail := lastLine(stderr.String()); tail != "" {
			msg += ": " + tail
		}
		return "", perrors.Wrap(err, perrors.ErrIO, notebookPath, msg)
	}

	out := filepath.Join(outDir, stem+".md")
	if _, err := os.Stat(out); err != nil {
		return "", perrors.Wrap(err, perrors.ErrIO, notebookPath, "nbconvert produced no output")
	}
	return out, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
