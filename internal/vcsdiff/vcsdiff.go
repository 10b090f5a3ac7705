// Package vcsdiff runs a VCS subprocess to produce unified diff text,
// following the teacher's diff.GitDiff adapter shape.
package vcsdiff

import (
	"context"
	"os/exec"

	"github.com/covrs/covrs/internal/coreerrors"
)

// defaultArgs is used when the caller supplies none, diffing HEAD against
// its merge base with the default upstream branch.
var defaultArgs = []string{"origin/main...HEAD"}

// execFunc runs a subprocess in dir and returns its standard output,
// swappable in tests.
type execFunc func(ctx context.Context, dir string, args []string) ([]byte, error)

// Git produces unified diff text via the `git diff` subprocess.
type Git struct {
	Dir  string
	Exec execFunc
}

// Diff runs `git diff <args>` (or the default upstream comparison when args
// is empty) in g.Dir and returns the raw unified diff text.
func (g Git) Diff(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		args = defaultArgs
	}
	fullArgs := append([]string{"diff"}, args...)

	execFn := g.Exec
	if execFn == nil {
		execFn = runGit
	}

	out, err := execFn(ctx, g.Dir, fullArgs)
	if err != nil {
		return "", &coreerrors.ExternalServiceError{Service: "git", Err: err}
	}
	return string(out), nil
}

func runGit(ctx context.Context, dir string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204 - args are caller-controlled CLI flags, not untrusted input
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, &exitError{msg: string(exitErr.Stderr)}
		}
		return nil, err
	}
	return out, nil
}

type exitError struct{ msg string }

func (e *exitError) Error() string { return "git diff failed: " + e.msg }
