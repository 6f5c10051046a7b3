package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/haatos/cijoe/internal"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBuild_Status(t *testing.T) {
	t.Run("success - unset and running are in progress", func(t *testing.T) {
		assert.True(t, (&Build{}).Building())
		assert.True(t, (&Build{Status: StatusRunning}).Building())
		assert.False(t, (&Build{Status: StatusWorked}).Building())
		assert.True(t, (&Build{Status: StatusWorked}).Worked())
		assert.True(t, (&Build{Status: StatusFailed}).Failed())
	})
}

func TestBuild_ShortSHA(t *testing.T) {
	assert.Equal(t, "0123456", (&Build{SHA: "0123456789"}).ShortSHA())
	assert.Equal(t, "abc", (&Build{SHA: "abc"}).ShortSHA())
}

func TestBuild_Duration(t *testing.T) {
	t.Run("success - zero while running", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), (&Build{StartedAt: time.Now()}).Duration())
	})
	t.Run("success - finished build", func(t *testing.T) {
		// arrange
		started := time.Now()
		finished := started.Add(3 * time.Second)

		// act
		d := (&Build{StartedAt: started, FinishedAt: &finished}).Duration()

		// assert
		assert.Equal(t, 3*time.Second, d)
	})
}

func TestBuild_CleanOutput(t *testing.T) {
	t.Run("success - colour codes are stripped", func(t *testing.T) {
		// arrange
		b := &Build{Output: "\x1b[32m3 tests\x1b[0m, \x1b[1;31m1 failure\x1b[0m\n\n"}

		// act
		clean := b.CleanOutput()

		// assert
		assert.Equal(t, "3 tests, 1 failure", clean)
	})
	t.Run("success - env output keeps the tail", func(t *testing.T) {
		// arrange
		b := &Build{Output: strings.Repeat("x", envOutputLimit) + "tail"}

		// act
		out := b.EnvOutput()

		// assert
		assert.Len(t, out, envOutputLimit)
		assert.True(t, strings.HasSuffix(out, "tail"))
	})
}

func TestBuild_Copy(t *testing.T) {
	t.Run("success - copy shares no pointers", func(t *testing.T) {
		// arrange
		finished := time.Now()
		pid := 7
		b := &Build{Branch: "master", FinishedAt: &finished, PID: &pid, Commit: &Commit{SHA: "a"}}

		// act
		c := b.Copy()
		*c.PID = 8
		c.Commit.SHA = "b"
		*c.FinishedAt = finished.Add(time.Hour)

		// assert
		assert.Equal(t, 7, *b.PID)
		assert.Equal(t, "a", b.Commit.SHA)
		assert.True(t, b.FinishedAt.Equal(finished))
	})
	t.Run("success - nil copy", func(t *testing.T) {
		var b *Build
		assert.Nil(t, b.Copy())
	})
}

func genBuild() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.AlphaString(),
		gen.OneConstOf(StatusRunning, StatusWorked, StatusFailed),
		gen.AlphaString(),
		gen.Int64Range(0, 4_000_000_000),
		gen.Int64Range(0, 999_999_999),
		gen.IntRange(0, 1<<22),
	).Map(func(values []interface{}) *Build {
		started := time.Unix(values[4].(int64), values[5].(int64)).UTC()
		b := &Build{
			ProjectPath: "/srv/project",
			User:        "defunkt",
			Project:     "cijoe",
			Branch:      values[0].(string),
			SHA:         values[1].(string),
			Status:      values[2].(BuildStatus),
			Output:      values[3].(string),
			StartedAt:   started,
		}
		if b.Building() {
			pid := values[6].(int) + 1
			b.PID = &pid
		} else {
			finished := started.Add(time.Duration(values[6].(int)) * time.Millisecond)
			b.FinishedAt = &finished
		}
		return b
	})
}

func sameBuild(a, b *Build) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Branch != b.Branch || a.SHA != b.SHA || a.Status != b.Status || a.Output != b.Output {
		return false
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return false
	}
	if (a.FinishedAt == nil) != (b.FinishedAt == nil) {
		return false
	}
	if a.FinishedAt != nil && !a.FinishedAt.Equal(*b.FinishedAt) {
		return false
	}
	if (a.PID == nil) != (b.PID == nil) {
		return false
	}
	return a.PID == nil || *a.PID == *b.PID
}

func TestBuildStore_RoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if err := RunMigrations(db, internal.MigrationsDir); err != nil {
		t.Fatal(err)
	}

	stores := map[string]BuildStore{
		"sqlite": NewBuildSQLiteStore(db, db),
		"file":   NewBuildFileStore(t.TempDir()),
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)
	for name, s := range stores {
		properties.Property(name+" store reads back what was written", prop.ForAll(
			func(b *Build, slot Slot) bool {
				ctx := context.Background()
				if err := s.WriteBuild(ctx, slot, b); err != nil {
					return false
				}
				stored, err := s.ReadBuild(ctx, slot)
				return err == nil && sameBuild(b, stored)
			},
			genBuild(),
			gen.OneConstOf(SlotCurrent, SlotLast),
		))
	}
	properties.TestingRun(t)
}
