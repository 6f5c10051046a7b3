package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/haatos/cijoe/internal/store"
)

// GitWorkingCopy shells out to git inside the project directory.
type GitWorkingCopy struct {
	projectPath string
}

func NewGitWorkingCopy(projectPath string) *GitWorkingCopy {
	return &GitWorkingCopy{projectPath: projectPath}
}

// Update fetches origin and hard resets the working copy onto
// origin/<branch>. The combined git output is returned in both cases.
func (g *GitWorkingCopy) Update(ctx context.Context, branch string) (string, error) {
	fetchOutput, err := g.run(ctx, "fetch", "origin")
	if err != nil {
		return fetchOutput, &WorkingCopyError{Branch: branch, Output: fetchOutput, Err: err}
	}
	resetOutput, err := g.run(ctx, "reset", "--hard", "origin/"+branch)
	output := fetchOutput + resetOutput
	if err != nil {
		return output, &WorkingCopyError{Branch: branch, Output: output, Err: err}
	}
	return output, nil
}

func (g *GitWorkingCopy) SHA(ctx context.Context, branch string) (string, error) {
	out, err := g.run(ctx, "rev-parse", "origin/"+branch)
	if err != nil {
		return "", fmt.Errorf("err resolving origin/%s: %w: %s", branch, err, strings.TrimSpace(out))
	}
	return strings.TrimSpace(out), nil
}

func (g *GitWorkingCopy) Commit(ctx context.Context, sha string) (*store.Commit, error) {
	out, err := g.run(ctx, "show", "-s", "--format=%H%x00%an <%ae>%x00%B", sha)
	if err != nil {
		return nil, fmt.Errorf("err reading commit %s: %w", sha, err)
	}
	return parseCommit(out)
}

// UserAndProject derives the repository owner and name from the origin
// remote URL.
func (g *GitWorkingCopy) UserAndProject(ctx context.Context) (string, string, error) {
	out, err := g.run(ctx, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", "", fmt.Errorf("err reading origin url: %w", err)
	}
	user, project := parseUserAndProject(out)
	return user, project, nil
}

func (g *GitWorkingCopy) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.projectPath
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func parseCommit(out string) (*store.Commit, error) {
	parts := strings.SplitN(out, "\x00", 3)
	if len(parts) != 3 {
		return nil, errors.New("unexpected git show output")
	}
	return &store.Commit{
		SHA:     strings.TrimSpace(parts[0]),
		Author:  strings.TrimSpace(parts[1]),
		Message: strings.TrimSpace(parts[2]),
	}, nil
}

// parseUserAndProject accepts both scp-like (git@host:user/project.git)
// and URL forms.
func parseUserAndProject(remote string) (string, string) {
	remote = strings.TrimSuffix(strings.TrimSpace(remote), ".git")
	if i := strings.LastIndex(remote, ":"); i >= 0 {
		remote = remote[i+1:]
	}
	parts := strings.Split(strings.Trim(remote, "/"), "/")
	if len(parts) < 2 {
		return "", parts[len(parts)-1]
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}
