package store

import (
	"regexp"
	"strings"
	"time"
)

type BuildStatus string

const (
	StatusRunning BuildStatus = "running"
	StatusWorked  BuildStatus = "worked"
	StatusFailed  BuildStatus = "failed"
)

// Slot names a persisted location holding at most one build.
type Slot string

const (
	SlotCurrent Slot = "current"
	SlotLast    Slot = "last"
)

const envOutputLimit = 10_000

var ansiColorRe = regexp.MustCompile(`\x1b\[.+?m`)

type Commit struct {
	SHA     string `json:"sha"     yaml:"sha"`
	Author  string `json:"author"  yaml:"author"`
	Message string `json:"message" yaml:"message"`
}

type Build struct {
	ProjectPath string `json:"project_path" yaml:"project_path"`
	User        string `json:"user"         yaml:"user"`
	Project     string `json:"project"      yaml:"project"`

	StartedAt  time.Time  `json:"started_at"            yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	Branch string      `json:"branch"           yaml:"branch"`
	SHA    string      `json:"sha,omitempty"    yaml:"sha,omitempty"`
	Status BuildStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Output string      `json:"output"           yaml:"output"`
	// OS process id of the build command, nil before spawn.
	PID    *int    `json:"pid,omitempty"    yaml:"pid,omitempty"`
	Commit *Commit `json:"commit,omitempty" yaml:"commit,omitempty"`
}

func NewBuild(projectPath, user, project, branch string) *Build {
	return &Build{
		ProjectPath: projectPath,
		User:        user,
		Project:     project,
		Branch:      branch,
		StartedAt:   time.Now().UTC(),
	}
}

// Building reports whether the build has not reached a terminal status.
func (b *Build) Building() bool {
	return b.Status == "" || b.Status == StatusRunning
}

func (b *Build) Worked() bool {
	return b.Status == StatusWorked
}

func (b *Build) Failed() bool {
	return b.Status == StatusFailed
}

func (b *Build) ShortSHA() string {
	if len(b.SHA) > 7 {
		return b.SHA[:7]
	}
	return b.SHA
}

// Duration is zero while the build is still running.
func (b *Build) Duration() time.Duration {
	if b.FinishedAt == nil {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}

func (b *Build) CleanOutput() string {
	return strings.TrimSpace(ansiColorRe.ReplaceAllString(b.Output, ""))
}

// EnvOutput is the tail of the clean output, small enough to pass to a
// hook through its environment.
func (b *Build) EnvOutput() string {
	out := b.CleanOutput()
	if len(out) > envOutputLimit {
		return out[len(out)-envOutputLimit:]
	}
	return out
}

// Copy returns a deep copy so callers can read it without holding the
// orchestrator's lock.
func (b *Build) Copy() *Build {
	if b == nil {
		return nil
	}
	c := *b
	if b.FinishedAt != nil {
		finishedAt := *b.FinishedAt
		c.FinishedAt = &finishedAt
	}
	if b.PID != nil {
		pid := *b.PID
		c.PID = &pid
	}
	if b.Commit != nil {
		commit := *b.Commit
		c.Commit = &commit
	}
	return &c
}
