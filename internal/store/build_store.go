package store

import (
	"context"
	"path/filepath"
)

// BuildsDir is where build slots live, relative to the project directory.
const BuildsDir = ".git/builds"

type BuildStore interface {
	// WriteBuild stores b under slot. A nil build removes the slot.
	WriteBuild(ctx context.Context, slot Slot, b *Build) error
	// ReadBuild returns nil without an error when the slot is empty or
	// its contents cannot be decoded.
	ReadBuild(ctx context.Context, slot Slot) (*Build, error)
}

func BuildsPath(projectPath string) string {
	return filepath.Join(projectPath, filepath.FromSlash(BuildsDir))
}
