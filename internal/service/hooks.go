package service

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"

	"github.com/haatos/cijoe/internal"
	"github.com/haatos/cijoe/internal/store"
	"github.com/haatos/cijoe/internal/util"
)

const (
	HookAfterReset  = "after-reset"
	HookBuildWorked = "build-worked"
	HookBuildFailed = "build-failed"
)

// HookRunner executes the optional scripts in the project's .git/hooks.
type HookRunner struct {
	projectPath string
}

func NewHookRunner(projectPath string) *HookRunner {
	return &HookRunner{projectPath: projectPath}
}

func (h *HookRunner) Path(name string) string {
	return filepath.Join(h.projectPath, filepath.FromSlash(internal.HooksDir), name)
}

// Run executes hook name if it exists and is executable. The hook sees
// only the variables built from last, never the daemon's environment.
func (h *HookRunner) Run(ctx context.Context, name string, last *store.Build) (string, error) {
	file := h.Path(name)
	if !util.IsExecutableFile(file) {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, "sh", file)
	cmd.Dir = h.projectPath
	cmd.Env = hookEnv(last)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), &HookError{Hook: name, Err: err}
	}
	return out.String(), nil
}

// hookEnv is never nil: a nil Env would make exec inherit the daemon's
// environment.
func hookEnv(last *store.Build) []string {
	env := []string{}
	if last == nil || last.Commit == nil {
		return env
	}
	return append(env,
		"MESSAGE="+last.Commit.Message,
		"AUTHOR="+last.Commit.Author,
		"SHA="+last.Commit.SHA,
		"OUTPUT="+last.EnvOutput(),
	)
}
