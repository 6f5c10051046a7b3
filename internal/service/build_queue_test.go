package service

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBuildQueue_AppendUnlessExists(t *testing.T) {
	t.Run("success - branches are kept in request order", func(t *testing.T) {
		// arrange
		q := NewBuildQueue(true)

		// act
		q.AppendUnlessExists("a")
		q.AppendUnlessExists("b")
		q.AppendUnlessExists("a")

		// assert
		assert.Equal(t, []string{"a", "b"}, q.Branches())
		assert.True(t, q.Waiting())
	})
	t.Run("success - disabled queue drops requests", func(t *testing.T) {
		// arrange
		q := NewBuildQueue(false)

		// act
		q.AppendUnlessExists("a")

		// assert
		assert.False(t, q.Enabled())
		assert.False(t, q.Waiting())
		assert.Empty(t, q.Branches())
	})
}

func TestBuildQueue_NextToBuild(t *testing.T) {
	t.Run("success - head is popped", func(t *testing.T) {
		// arrange
		q := NewBuildQueue(true)
		q.AppendUnlessExists("a")
		q.AppendUnlessExists("b")

		// act
		branch, ok := q.NextToBuild()

		// assert
		assert.True(t, ok)
		assert.Equal(t, "a", branch)
		assert.Equal(t, []string{"b"}, q.Branches())
	})
	t.Run("success - empty queue", func(t *testing.T) {
		// arrange
		q := NewBuildQueue(true)

		// act
		branch, ok := q.NextToBuild()

		// assert
		assert.False(t, ok)
		assert.Equal(t, "", branch)
	})
	t.Run("success - popped branch can be queued again", func(t *testing.T) {
		// arrange
		q := NewBuildQueue(true)
		q.AppendUnlessExists("a")
		q.NextToBuild()

		// act
		q.AppendUnlessExists("a")

		// assert
		assert.Equal(t, []string{"a"}, q.Branches())
	})
}

func TestBuildQueue_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	branches := gen.SliceOf(gen.OneConstOf("master", "dev", "feature", "fix"))

	properties.Property("queue holds each branch once, in first-request order", prop.ForAll(
		func(requests []string) bool {
			q := NewBuildQueue(true)
			var want []string
			for _, r := range requests {
				q.AppendUnlessExists(r)
				if !slices.Contains(want, r) {
					want = append(want, r)
				}
			}
			return slices.Equal(want, q.Branches())
		},
		branches,
	))

	properties.Property("draining yields every queued branch then nothing", prop.ForAll(
		func(requests []string) bool {
			q := NewBuildQueue(true)
			for _, r := range requests {
				q.AppendUnlessExists(r)
			}
			queued := q.Branches()
			var drained []string
			for {
				b, ok := q.NextToBuild()
				if !ok {
					break
				}
				drained = append(drained, b)
			}
			return slices.Equal(queued, drained) && !q.Waiting()
		},
		branches,
	))

	properties.TestingRun(t)
}
