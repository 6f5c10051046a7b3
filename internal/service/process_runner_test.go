package service

import (
	"bytes"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessRunner_Spawn(t *testing.T) {
	t.Run("success - stdout and stderr are merged", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()

		// act
		p, err := r.Spawn("printf out; printf err 1>&2", t.TempDir())
		assert.NoError(t, err)
		output, readErr := p.ReadOutput(nil)
		status, waitErr := p.Wait()

		// assert
		assert.NoError(t, readErr)
		assert.NoError(t, waitErr)
		assert.Greater(t, p.Pid, 0)
		assert.Equal(t, 0, status)
		assert.Equal(t, "outerr", output)
	})
	t.Run("success - non-zero exit status is reported", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()

		// act
		p, err := r.Spawn("printf boom; exit 3", t.TempDir())
		assert.NoError(t, err)
		output, _ := p.ReadOutput(nil)
		status, waitErr := p.Wait()

		// assert
		assert.NoError(t, waitErr)
		assert.Equal(t, 3, status)
		assert.Equal(t, "boom", output)
	})
	t.Run("success - output is copied to the live writer", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()
		var live bytes.Buffer

		// act
		p, err := r.Spawn("echo one; echo two", t.TempDir())
		assert.NoError(t, err)
		output, _ := p.ReadOutput(&live)
		p.Wait()

		// assert
		assert.Equal(t, "one\ntwo\n", output)
		assert.Equal(t, output, live.String())
	})
	t.Run("success - command runs in the working directory", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()
		dir := t.TempDir()
		resolved, _ := filepath.EvalSymlinks(dir)

		// act
		p, err := r.Spawn("pwd -P", dir)
		assert.NoError(t, err)
		output, _ := p.ReadOutput(nil)
		p.Wait()

		// assert
		assert.Equal(t, resolved+"\n", output)
	})
	t.Run("failure - missing working directory", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()

		// act
		p, err := r.Spawn("true", filepath.Join(t.TempDir(), "missing"))

		// assert
		assert.Nil(t, p)
		var spawnErr *SpawnError
		assert.True(t, errors.As(err, &spawnErr))
		assert.Equal(t, "true", spawnErr.Command)
	})
}

func TestProcess_Kill(t *testing.T) {
	t.Run("success - killed command reports -1", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()
		p, err := r.Spawn("sleep 30", t.TempDir())
		assert.NoError(t, err)

		// act
		assert.NoError(t, Kill(p.Pid))
		p.ReadOutput(nil)
		status, _ := p.Wait()

		// assert
		assert.Equal(t, -1, status)
		assert.False(t, ProcessAlive(p.Pid))
	})
	t.Run("failure - invalid pid", func(t *testing.T) {
		// act
		err := Kill(0)

		// assert
		assert.Error(t, err)
	})
}

func TestProcessAlive(t *testing.T) {
	t.Run("success - running process is alive", func(t *testing.T) {
		// arrange
		cmd := exec.Command("sleep", "30")
		assert.NoError(t, cmd.Start())
		defer func() {
			cmd.Process.Kill()
			cmd.Wait()
		}()

		// act
		alive := ProcessAlive(cmd.Process.Pid)

		// assert
		assert.True(t, alive)
	})
	t.Run("success - reaped process is dead", func(t *testing.T) {
		// arrange
		cmd := exec.Command("true")
		assert.NoError(t, cmd.Run())

		// act
		alive := ProcessAlive(cmd.Process.Pid)

		// assert
		assert.False(t, alive)
	})
	t.Run("success - non-positive pid is dead", func(t *testing.T) {
		assert.False(t, ProcessAlive(0))
		assert.False(t, ProcessAlive(-1))
	})
}

func TestProcessRunner_ReadOutputWaitsForBackgroundWriters(t *testing.T) {
	t.Run("success - output of forked children is captured", func(t *testing.T) {
		// arrange
		r := NewProcessRunner()
		start := time.Now()

		// act
		p, err := r.Spawn("(sleep 0.2; printf late) & printf early", t.TempDir())
		assert.NoError(t, err)
		output, _ := p.ReadOutput(nil)
		p.Wait()

		// assert
		assert.Equal(t, "earlylate", output)
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	})
}
