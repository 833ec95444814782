// Package repo implements the repository/overlay manager. A Repository
// is a named source tree (the primary tree or an overlay) synced from a
// remote via one of several VCS transports; the Manager tracks the
// priority-ordered list of configured repositories and guards mutation
// of its on-disk state file with an exclusive lock.
package repo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"
)

// Transport names the kind of remote a Repository syncs from. git/svn/
// bzr/hg sync through github.com/Masterminds/vcs, and "local" syncs as a
// symlink to a filesystem path. "rsync" and "http" are accepted as
// transport names, but Manager.Sync returns an error for them.
type Transport string

const (
	TransportGit   Transport = "git"
	TransportHg    Transport = "hg"
	TransportSvn   Transport = "svn"
	TransportBzr   Transport = "bzr"
	TransportRsync Transport = "rsync"
	TransportHTTP  Transport = "http"
	TransportLocal Transport = "local"
)

// Repository is one configured source tree.
type Repository struct {
	Name      string    `json:"name"`
	Transport Transport `json:"transport"`
	Remote    string    `json:"remote"`
	LocalPath string    `json:"local_path"`
	Priority  int       `json:"priority"`
	SyncedAt  time.Time `json:"synced_at,omitempty"`
}

// state is the on-disk overlay state file shape, JSON-first.
type state struct {
	Repositories []Repository `json:"repositories"`
}

// Manager owns the configured repository set and the on-disk state file
// guarded by an exclusive lock during any mutation.
type Manager struct {
	statePath string
	lock      *flock.Flock
	repos     []Repository
}

// NewManager loads (or initializes) the overlay state file at statePath.
func NewManager(statePath string) (*Manager, error) {
	m := &Manager{
		statePath: statePath,
		lock:      flock.New(statePath + ".lock"),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		m.repos = nil
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "repo: reading overlay state")
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return errors.Wrap(err, "repo: parsing overlay state")
	}
	m.repos = st.Repositories
	return nil
}

// withLock runs fn while holding the exclusive file lock, reloading
// state first and persisting it after fn returns successfully — every
// mutating Manager method goes through this so concurrent corebrew
// invocations never interleave writes.
func (m *Manager) withLock(fn func() error) error {
	if err := m.lock.Lock(); err != nil {
		return errors.Wrap(err, "repo: acquiring overlay lock")
	}
	defer m.lock.Unlock()

	if err := m.load(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return m.persist()
}

func (m *Manager) persist() error {
	data, err := json.MarshalIndent(state{Repositories: m.repos}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "repo: marshaling overlay state")
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "repo: writing overlay state")
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return errors.Wrap(err, "repo: committing overlay state")
	}
	return nil
}

// Add registers a new repository with the priority given in r;
// registering a name that is already present is an error.
func (m *Manager) Add(r Repository) error {
	return m.withLock(func() error {
		for _, existing := range m.repos {
			if existing.Name == r.Name {
				return errors.Errorf("repo: %q already registered", r.Name)
			}
		}
		m.repos = append(m.repos, r)
		return nil
	})
}

// Remove deregisters a repository by name; it does not delete the
// repository's local checkout.
func (m *Manager) Remove(name string) error {
	return m.withLock(func() error {
		out := m.repos[:0]
		found := false
		for _, r := range m.repos {
			if r.Name == name {
				found = true
				continue
			}
			out = append(out, r)
		}
		if !found {
			return errors.Errorf("repo: %q not registered", name)
		}
		m.repos = out
		return nil
	})
}

// List returns every configured repository, highest priority first
// (P9: overlay precedence).
func (m *Manager) List() []Repository {
	out := append([]Repository(nil), m.repos...)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// PriorityOf returns the priority of the named repository, or the
// lowest possible priority if it is not registered (so an unknown repo
// never wins a precedence comparison against a known one).
func (m *Manager) PriorityOf(name string) int {
	for _, r := range m.repos {
		if r.Name == name {
			return r.Priority
		}
	}
	return -1 << 30
}

// Sync clones (if LocalPath doesn't exist) or updates (otherwise) every
// configured repository, recording the new SyncedAt timestamp. It treats
// the VCS binary as an external process shelled out to via
// github.com/Masterminds/vcs, whose errors are wrapped rather than
// parsed. A repository with the rsync or http transport is not synced:
// Sync returns an error for it.
func (m *Manager) Sync(ctx context.Context, names ...string) error {
	return m.withLock(func() error {
		want := make(map[string]bool, len(names))
		for _, n := range names {
			want[n] = true
		}
		for i := range m.repos {
			r := &m.repos[i]
			if len(want) > 0 && !want[r.Name] {
				continue
			}
			if err := syncOne(ctx, r); err != nil {
				return errors.Wrapf(err, "repo: syncing %q", r.Name)
			}
			r.SyncedAt = timeNow()
		}
		return nil
	})
}

var timeNow = time.Now

func syncOne(ctx context.Context, r *Repository) error {
	switch r.Transport {
	case TransportLocal:
		return syncLocal(r)
	case TransportGit, TransportHg, TransportSvn, TransportBzr:
		return syncVCS(r)
	case TransportRsync, TransportHTTP:
		// Repository sync over rsync or http is not done here; the error
		// points at cache.FetchTo, which fetches single files over these
		// transports.
		return errors.Errorf("repo: transport %q requires cache.FetchTo (see internal/cache)", r.Transport)
	default:
		return errors.Errorf("repo: unknown transport %q", r.Transport)
	}
}

func syncLocal(r *Repository) error {
	info, err := os.Stat(r.Remote)
	if err != nil {
		return errors.Wrap(err, "repo: local source")
	}
	if !info.IsDir() {
		return errors.Errorf("repo: local source %q is not a directory", r.Remote)
	}
	if err := os.MkdirAll(filepath.Dir(r.LocalPath), 0o755); err != nil {
		return err
	}
	// A local-transport repository is just a symlink to the source tree:
	// there is no history to clone, only a path to track.
	_ = os.Remove(r.LocalPath)
	return os.Symlink(r.Remote, r.LocalPath)
}

func syncVCS(r *Repository) error {
	repo, err := vcs.NewRepo(r.Remote, r.LocalPath)
	if err != nil {
		return errors.Wrap(err, "repo: detecting VCS type")
	}
	if repo.CheckLocal() {
		return repo.Update()
	}
	return repo.Get()
}
