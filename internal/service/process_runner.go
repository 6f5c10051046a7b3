package service

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// ProcessRunner starts build commands through the shell with stdout and
// stderr merged into one pipe.
type ProcessRunner struct {
	Shell string
}

func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{Shell: "sh"}
}

type Process struct {
	Pid int

	cmd    *exec.Cmd
	output *os.File
}

// Spawn starts command in workingDir. The returned process is running and
// its pid is known; its output must be drained with ReadOutput before Wait.
func (r *ProcessRunner) Spawn(command, workingDir string) (*Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	cmd := exec.Command(r.Shell, "-c", command)
	cmd.Dir = workingDir
	cmd.Stdout = pw
	cmd.Stderr = pw
	// own process group so Kill reaches everything the command forks
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &SpawnError{Command: command, Err: err}
	}
	// the child holds its own copy of the write end
	pw.Close()

	return &Process{Pid: cmd.Process.Pid, cmd: cmd, output: pr}, nil
}

// ReadOutput blocks until every writer of the output pipe has exited and
// returns everything the command printed. Chunks are also copied to w as
// they arrive when w is not nil.
func (p *Process) ReadOutput(w io.Writer) (string, error) {
	defer p.output.Close()

	var buf strings.Builder
	dst := io.Writer(&buf)
	if w != nil {
		dst = io.MultiWriter(&buf, bestEffortWriter{w})
	}
	_, err := io.Copy(dst, p.output)
	return buf.String(), err
}

// Wait reaps the process and returns its exit status. A command killed by
// a signal reports -1.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Kill sends SIGKILL to the process group led by pid, falling back to the
// pid itself.
func Kill(pid int) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}

// ProcessAlive probes pid with signal 0.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// bestEffortWriter never fails so a broken live-output consumer cannot
// stop the pipe from being drained.
type bestEffortWriter struct {
	w io.Writer
}

func (bw bestEffortWriter) Write(p []byte) (int, error) {
	_, _ = bw.w.Write(p)
	return len(p), nil
}
