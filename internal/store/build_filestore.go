package store

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// BuildFileStore keeps every slot as a YAML document in the project's
// builds directory.
type BuildFileStore struct {
	dir string
}

func NewBuildFileStore(projectPath string) *BuildFileStore {
	return &BuildFileStore{dir: BuildsPath(projectPath)}
}

func (store *BuildFileStore) path(slot Slot) string {
	return filepath.Join(store.dir, string(slot))
}

func (store *BuildFileStore) WriteBuild(ctx context.Context, slot Slot, b *Build) error {
	filename := store.path(slot)
	if b == nil {
		if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	if err := os.MkdirAll(store.dir, os.ModePerm); err != nil {
		return err
	}
	data, err := yaml.Marshal(b)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(store.dir, "."+string(slot)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

func (store *BuildFileStore) ReadBuild(ctx context.Context, slot Slot) (*Build, error) {
	data, err := os.ReadFile(store.path(slot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	b := new(Build)
	if err := yaml.Unmarshal(data, b); err != nil {
		log.Printf("err decoding %s build: %+v\n", slot, err)
		return nil, nil
	}
	return b, nil
}
