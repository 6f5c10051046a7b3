package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/haatos/cijoe/internal/store"
)

type BuildConfig interface {
	DefaultBranch() string
	RunnerCommand() string
	QueueingEnabled() bool
}

type WorkingCopy interface {
	Update(ctx context.Context, branch string) (string, error)
	SHA(ctx context.Context, branch string) (string, error)
	Commit(ctx context.Context, sha string) (*store.Commit, error)
}

type Spawner interface {
	Spawn(command, workingDir string) (*Process, error)
}

type HookExecutor interface {
	Run(ctx context.Context, name string, last *store.Build) (string, error)
}

// BuildServicer is the part of Joe the HTTP front end depends on.
type BuildServicer interface {
	RequestBuild(branch string)
	Building() bool
	CurrentBuild() *store.Build
	LastBuild() *store.Build
	QueuedBranches() []string
	DefaultBranch() string
	User() string
	Project() string
	URL() string
}

type JoeParams struct {
	ProjectPath string
	User        string
	Project     string

	Config      BuildConfig
	Store       store.BuildStore
	WorkingCopy WorkingCopy
	Runner      Spawner
	// optional
	Hooks     HookExecutor
	Notifiers []Notifier
	Events    *BuildEvents
}

// Joe runs the builds of a single project, one at a time.
type Joe struct {
	projectPath string
	user        string
	project     string

	config      BuildConfig
	store       store.BuildStore
	workingCopy WorkingCopy
	runner      Spawner
	hooks       HookExecutor
	notifiers   []Notifier
	events      *BuildEvents

	processAlive func(pid int) bool
	killProcess  func(pid int) error

	mu      sync.Mutex
	current *store.Build
	last    *store.Build
	queue   *BuildQueue
	// current was restored from disk and is not watched by this process
	orphaned bool
	stopped  bool

	builds sync.WaitGroup
}

func NewJoe(p JoeParams) *Joe {
	return &Joe{
		projectPath:  p.ProjectPath,
		user:         p.User,
		project:      p.Project,
		config:       p.Config,
		store:        p.Store,
		workingCopy:  p.WorkingCopy,
		runner:       p.Runner,
		hooks:        p.Hooks,
		notifiers:    p.Notifiers,
		events:       p.Events,
		processAlive: ProcessAlive,
		killProcess:  Kill,
		queue:        NewBuildQueue(p.Config.QueueingEnabled()),
	}
}

func (j *Joe) User() string {
	return j.user
}

func (j *Joe) Project() string {
	return j.project
}

func (j *Joe) URL() string {
	return fmt.Sprintf("http://github.com/%s/%s", j.user, j.project)
}

func (j *Joe) DefaultBranch() string {
	return j.config.DefaultBranch()
}

func (j *Joe) Building() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current != nil
}

func (j *Joe) CurrentBuild() *store.Build {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.Copy()
}

func (j *Joe) LastBuild() *store.Build {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last.Copy()
}

func (j *Joe) QueuedBranches() []string {
	return j.queue.Branches()
}

func (j *Joe) QueueingEnabled() bool {
	return j.queue.Enabled()
}

// RequestBuild starts a build of branch, or of the default branch when
// branch is empty. While another build runs, or queued branches are
// waiting their turn, the branch is queued, or dropped when queueing is
// disabled.
func (j *Joe) RequestBuild(branch string) {
	if branch == "" {
		branch = j.config.DefaultBranch()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		return
	}
	// a waiting queue with no current build means a finished build is
	// still notifying; startNext will pick the head up
	if j.current != nil || j.queue.Waiting() {
		j.queue.AppendUnlessExists(branch)
		return
	}
	j.startLocked(branch)
}

func (j *Joe) isStopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopped
}

// WaitForBuilds blocks until no build goroutine is left, including builds
// chained from the queue.
func (j *Joe) WaitForBuilds() {
	j.builds.Wait()
}

// startLocked must be called with j.mu held and no current build.
func (j *Joe) startLocked(branch string) {
	b := store.NewBuild(j.projectPath, j.user, j.project, branch)
	j.current = b
	j.orphaned = false
	j.writeBuild(store.SlotCurrent, b)
	j.publish(b)

	j.builds.Add(1)
	go func() {
		defer j.builds.Done()
		j.runBuild(b)
	}()
}

type buildResult struct {
	output string
	err    error
}

func (j *Joe) runBuild(b *store.Build) {
	res := j.safeBuild(b)
	if res.err != nil {
		log.Printf("err building %s: %+v\n", b.Branch, res.err)
		j.finish(b, store.StatusFailed, fmt.Sprintf("%s\n\n%s", res.err, res.output))
		return
	}
	j.finish(b, store.StatusWorked, res.output)
}

func (j *Joe) safeBuild(b *store.Build) (res buildResult) {
	defer func() {
		if r := recover(); r != nil {
			res = buildResult{output: res.output, err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return j.build(context.Background(), b)
}

func (j *Joe) build(ctx context.Context, b *store.Build) buildResult {
	var prelude string
	if out, err := j.workingCopy.Update(ctx, b.Branch); err != nil {
		log.Println("err updating working copy:", err)
		prelude = fmt.Sprintf("%s\n%s\n", err, out)
	}
	j.runHook(ctx, HookAfterReset)

	sha, err := j.workingCopy.SHA(ctx, b.Branch)
	if err != nil {
		return buildResult{output: prelude, err: err}
	}
	commit, err := j.workingCopy.Commit(ctx, sha)
	if err != nil {
		log.Println("err reading commit metadata:", err)
	}
	j.update(b, func() {
		b.SHA = sha
		b.Commit = commit
	})

	if j.isStopped() {
		return buildResult{output: prelude, err: ErrShuttingDown}
	}
	p, err := j.runner.Spawn(j.config.RunnerCommand(), j.projectPath)
	if err != nil {
		return buildResult{output: prelude, err: err}
	}
	log.Printf("building %s at %s: pid=%d\n", b.Branch, b.ShortSHA(), p.Pid)
	j.update(b, func() {
		pid := p.Pid
		b.PID = &pid
		b.Status = store.StatusRunning
		// Shutdown ran while the command was starting
		if j.stopped {
			if err := j.killProcess(pid); err != nil {
				log.Printf("err killing build pid=%d: %+v\n", pid, err)
			}
		}
	})

	var live io.Writer
	if j.events != nil {
		live = j.events
	}
	output, readErr := p.ReadOutput(live)
	status, waitErr := p.Wait()
	log.Printf("built %s: status=%d\n", b.ShortSHA(), status)

	switch {
	case waitErr != nil:
		return buildResult{output: prelude + output, err: errors.Join(waitErr, readErr)}
	case status != 0:
		return buildResult{output: prelude + output, err: &ExitError{Status: status}}
	case readErr != nil:
		return buildResult{output: prelude + output, err: readErr}
	}
	return buildResult{output: output}
}

// update mutates the running build under the lock and persists it.
func (j *Joe) update(b *store.Build, fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn()
	if j.current == b {
		j.writeBuild(store.SlotCurrent, b)
	}
	j.publish(b)
}

func (j *Joe) finish(b *store.Build, status store.BuildStatus, output string) {
	j.mu.Lock()
	finishedAt := time.Now().UTC()
	b.FinishedAt = &finishedAt
	b.Status = status
	b.Output = output
	b.PID = nil
	j.last = b
	if j.current == b {
		j.current = nil
	}
	j.writeBuild(store.SlotCurrent, j.current)
	j.writeBuild(store.SlotLast, b)
	j.publish(b)
	finished := *b.Copy()
	j.mu.Unlock()

	ctx := context.Background()
	j.notify(ctx, finished)
	if finished.Worked() {
		j.runHook(ctx, HookBuildWorked)
	} else {
		j.runHook(ctx, HookBuildFailed)
	}

	j.startNext()
}

// startNext dispatches the next queued branch on its own goroutine, so a
// long backlog never deepens the stack.
func (j *Joe) startNext() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped || j.current != nil {
		return
	}
	branch, ok := j.queue.NextToBuild()
	if !ok {
		return
	}
	j.startLocked(branch)
}

// Restore reloads the current and last builds. A current build whose
// process is gone, or that never got as far as spawning, is discarded.
func (j *Joe) Restore(ctx context.Context) {
	last, err := j.store.ReadBuild(ctx, store.SlotLast)
	if err != nil {
		log.Println("err reading last build:", err)
		last = nil
	}
	current, err := j.store.ReadBuild(ctx, store.SlotCurrent)
	if err != nil {
		log.Println("err reading current build:", err)
		current = nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.last = last
	j.current = nil
	j.orphaned = false

	switch {
	case current == nil:
	case !current.Building():
		// finished, but the daemon stopped before the slots were swapped
		if last == nil || last.StartedAt.Before(current.StartedAt) {
			j.last = current
			j.writeBuild(store.SlotLast, current)
		}
		j.writeBuild(store.SlotCurrent, nil)
	case current.PID != nil && j.processAlive(*current.PID):
		log.Printf("build %s is still running: pid=%d\n", current.Branch, *current.PID)
		j.current = current
		j.orphaned = true
	default:
		log.Printf("discarding abandoned build of %s\n", current.Branch)
		j.writeBuild(store.SlotCurrent, nil)
	}
}

// CheckOrphan drops a restored build once its process has exited and
// starts the next queued branch.
func (j *Joe) CheckOrphan() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.orphaned || j.current == nil {
		return
	}
	if j.current.PID != nil && j.processAlive(*j.current.PID) {
		return
	}
	log.Printf("orphaned build of %s has exited\n", j.current.Branch)
	j.current = nil
	j.orphaned = false
	j.writeBuild(store.SlotCurrent, nil)

	if j.stopped {
		return
	}
	if branch, ok := j.queue.NextToBuild(); ok {
		j.startLocked(branch)
	}
}

// Shutdown kills the running build command and refuses further requests.
func (j *Joe) Shutdown() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if j.current == nil || j.current.PID == nil {
		return
	}
	pid := *j.current.PID
	if err := j.killProcess(pid); err != nil {
		log.Printf("err killing build pid=%d: %+v\n", pid, err)
	}
}

// writeBuild must be called with j.mu held.
func (j *Joe) writeBuild(slot store.Slot, b *store.Build) {
	if err := j.store.WriteBuild(context.Background(), slot, b); err != nil {
		log.Printf("err writing %s build: %+v\n", slot, err)
	}
}

func (j *Joe) publish(b *store.Build) {
	if j.events != nil {
		j.events.PublishStatus(*b.Copy())
	}
}

func (j *Joe) notify(ctx context.Context, b store.Build) {
	for _, n := range j.notifiers {
		if err := n.Notify(ctx, b); err != nil {
			log.Println("err notifying:", err)
		}
	}
}

func (j *Joe) runHook(ctx context.Context, name string) {
	if j.hooks == nil {
		return
	}
	if _, err := j.hooks.Run(ctx, name, j.LastBuild()); err != nil {
		log.Println("err running hook:", err)
	}
}
