package installdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"
)

// World is the persistent "explicitly requested" package set, stored as
// a JSON document and guarded by its own exclusive lock so concurrent
// corebrew invocations never race each other's membership edits.
type World struct {
	path string
	lock *flock.Flock
}

type worldFile struct {
	Atoms []string `json:"atoms"`
}

// NewWorld returns a World backed by path, which need not exist yet.
func NewWorld(path string) *World {
	return &World{path: path, lock: flock.New(path + ".lock")}
}

func (w *World) load() ([]string, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "installdb: reading world set")
	}
	var wf worldFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, errors.Wrap(err, "installdb: parsing world set")
	}
	return wf.Atoms, nil
}

func (w *World) persist(atoms []string) error {
	sort.Strings(atoms)
	data, err := json.MarshalIndent(worldFile{Atoms: atoms}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "installdb: marshaling world set")
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return errors.Wrap(err, "installdb: creating world set directory")
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "installdb: writing world set")
	}
	return errors.Wrap(os.Rename(tmp, w.path), "installdb: committing world set")
}

func (w *World) withLock(fn func(atoms []string) ([]string, error)) error {
	if err := w.lock.Lock(); err != nil {
		return errors.Wrap(err, "installdb: acquiring world set lock")
	}
	defer w.lock.Unlock()

	atoms, err := w.load()
	if err != nil {
		return err
	}
	next, err := fn(atoms)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return w.persist(next)
}

// Add records atom as explicitly requested, a no-op if already present.
func (w *World) Add(atom string) error {
	return w.withLock(func(atoms []string) ([]string, error) {
		for _, a := range atoms {
			if a == atom {
				return nil, nil
			}
		}
		return append(atoms, atom), nil
	})
}

// Remove deletes atom from the world set, a no-op if absent.
func (w *World) Remove(atom string) error {
	return w.withLock(func(atoms []string) ([]string, error) {
		out := make([]string, 0, len(atoms))
		for _, a := range atoms {
			if a != atom {
				out = append(out, a)
			}
		}
		return out, nil
	})
}

// List returns every atom currently in the world set, sorted.
func (w *World) List() ([]string, error) {
	atoms, err := w.load()
	if err != nil {
		return nil, err
	}
	sort.Strings(atoms)
	return atoms, nil
}

// Contains reports whether atom is a current world member.
func (w *World) Contains(atom string) (bool, error) {
	atoms, err := w.load()
	if err != nil {
		return false, err
	}
	for _, a := range atoms {
		if a == atom {
			return true, nil
		}
	}
	return false, nil
}
