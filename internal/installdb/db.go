// Package installdb implements the installed database. Each installed
// (PackageId, Slot) gets its own directory, split across several
// human-readable sub-files: metadata.toml holds declared identity,
// manifest.json the resolved file list, depends.json the dependency
// edges, and flags.json the chosen flag vector.
package installdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
)

// InstalledRecord is one entry of the installed database.
type InstalledRecord struct {
	Id       gps.PackageId
	Version  gps.Version
	Slot     gps.Slot
	Flags    map[string]bool
	Deps     []gps.Dependency
	Manifest []buildengine.FileManifestEntry
	Repo     string
}

type metadataFile struct {
	Category string `toml:"category"`
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Slot     string `toml:"slot"`
	Repo     string `toml:"repo"`
}

// DB is the on-disk installed database rooted at Root (conventionally
// var/db/corebrew).
type DB struct {
	Root string

	mu      sync.RWMutex
	reverse map[string]gps.PackageId // lazily built, path -> owning package
}

// New returns a DB rooted at root, creating it if necessary.
func New(root string) (*DB, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "installdb: creating root")
	}
	return &DB{Root: root}, nil
}

func (db *DB) dirFor(id gps.PackageId, slot gps.Slot) string {
	return filepath.Join(db.Root, id.Category, id.Name+"-"+string(slot))
}

// Put writes rec's four sub-files atomically enough for this use case:
// each is written to a temp file and renamed into place, so a reader
// never observes a half-written sub-file, though the four files are not
// swapped in as a single atomic unit (the transaction engine's Apply
// phase is the actual atomicity boundary; Put is its last step).
func (db *DB) Put(rec *InstalledRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	dir := db.dirFor(rec.Id, rec.Slot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "installdb: creating record directory")
	}

	meta := metadataFile{
		Category: rec.Id.Category,
		Name:     rec.Id.Name,
		Version:  rec.Version.String(),
		Slot:     string(rec.Slot),
		Repo:     rec.Repo,
	}
	metaBytes, err := toml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "installdb: marshaling metadata.toml")
	}
	if err := writeFileAtomic(filepath.Join(dir, "metadata.toml"), metaBytes); err != nil {
		return err
	}

	manifestBytes, err := json.MarshalIndent(rec.Manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "installdb: marshaling manifest.json")
	}
	if err := writeFileAtomic(filepath.Join(dir, "manifest.json"), manifestBytes); err != nil {
		return err
	}

	dependsBytes, err := json.MarshalIndent(depsToWire(rec.Deps), "", "  ")
	if err != nil {
		return errors.Wrap(err, "installdb: marshaling depends.json")
	}
	if err := writeFileAtomic(filepath.Join(dir, "depends.json"), dependsBytes); err != nil {
		return err
	}

	flagsBytes, err := json.MarshalIndent(rec.Flags, "", "  ")
	if err != nil {
		return errors.Wrap(err, "installdb: marshaling flags.json")
	}
	if err := writeFileAtomic(filepath.Join(dir, "flags.json"), flagsBytes); err != nil {
		return err
	}

	db.reverse = nil // invalidate the cached reverse index
	return nil
}

type wireDep struct {
	Atom     string `json:"atom"`
	Category string `json:"category"`
	Inverted bool   `json:"inverted"`
}

func depsToWire(deps []gps.Dependency) []wireDep {
	out := make([]wireDep, len(deps))
	for i, d := range deps {
		out[i] = wireDep{Atom: d.Atom.String(), Category: d.Category.String(), Inverted: d.Inverted}
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "installdb: creating %s", filepath.Base(path))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "installdb: writing %s", filepath.Base(path))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "installdb: fsync %s", filepath.Base(path))
	}
	if err := f.Close(); err != nil {
		return err
	}
	return errors.Wrapf(os.Rename(tmp, path), "installdb: renaming %s", filepath.Base(path))
}

// Get reads back a single installed record.
func (db *DB) Get(id gps.PackageId, slot gps.Slot) (*InstalledRecord, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	dir := db.dirFor(id, slot)
	metaBytes, err := os.ReadFile(filepath.Join(dir, "metadata.toml"))
	if err != nil {
		return nil, false
	}
	var meta metadataFile
	if err := toml.Unmarshal(metaBytes, &meta); err != nil {
		return nil, false
	}
	rec := &InstalledRecord{
		Id:      id,
		Version: gps.MustParseVersion(meta.Version),
		Slot:    slot,
		Repo:    meta.Repo,
	}
	if data, err := os.ReadFile(filepath.Join(dir, "manifest.json")); err == nil {
		json.Unmarshal(data, &rec.Manifest)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "flags.json")); err == nil {
		json.Unmarshal(data, &rec.Flags)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "depends.json")); err == nil {
		var wire []wireDep
		json.Unmarshal(data, &wire)
		categories := map[string]gps.DependencyCategory{"build": gps.DepBuild, "link": gps.DepLink, "runtime": gps.DepRuntime}
		for _, w := range wire {
			if a, err := gps.ParseAtom(w.Atom); err == nil {
				rec.Deps = append(rec.Deps, gps.Dependency{Atom: a, Category: categories[w.Category], Inverted: w.Inverted})
			}
		}
	}
	return rec, true
}

// Lookup implements gps.InstalledLookup so the resolver can consult this
// DB directly without a translation shim.
func (db *DB) Lookup(id gps.PackageId, slot gps.Slot) (gps.InstalledInfo, bool) {
	rec, ok := db.Get(id, slot)
	if !ok {
		return gps.InstalledInfo{}, false
	}
	return gps.InstalledInfo{Version: rec.Version, Flags: rec.Flags}, true
}

var _ gps.InstalledLookup = (*DB)(nil)

// Remove deletes an installed record's directory entirely.
func (db *DB) Remove(id gps.PackageId, slot gps.Slot) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reverse = nil
	if err := os.RemoveAll(db.dirFor(id, slot)); err != nil {
		return errors.Wrap(err, "installdb: removing record directory")
	}
	return nil
}

// List returns every installed record, sorted by PackageId then slot.
func (db *DB) List() []*InstalledRecord {
	db.mu.RLock()
	root := db.Root
	db.mu.RUnlock()

	var out []*InstalledRecord
	categories, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, catEntry := range categories {
		if !catEntry.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(root, catEntry.Name()))
		if err != nil {
			continue
		}
		for _, nameEntry := range names {
			if !nameEntry.IsDir() {
				continue
			}
			id, slot, ok := splitCategoryNameSlot(catEntry.Name(), nameEntry.Name())
			if !ok {
				continue
			}
			if rec, ok := db.Get(id, slot); ok {
				out = append(out, rec)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Id != out[j].Id {
			return out[i].Id.Less(out[j].Id)
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

func splitCategoryNameSlot(category, nameSlot string) (gps.PackageId, gps.Slot, bool) {
	for i := len(nameSlot) - 1; i >= 0; i-- {
		if nameSlot[i] == '-' {
			return gps.PackageId{Category: category, Name: nameSlot[:i]}, gps.Slot(nameSlot[i+1:]), true
		}
	}
	return gps.PackageId{}, "", false
}

// OwnerOf returns the package owning the given installed file path,
// building (and caching) the reverse index from every record's manifest
// on first use.
func (db *DB) OwnerOf(path string) (gps.PackageId, bool) {
	db.mu.RLock()
	reverse := db.reverse
	db.mu.RUnlock()

	if reverse == nil {
		reverse = make(map[string]gps.PackageId)
		for _, rec := range db.List() {
			for _, f := range rec.Manifest {
				reverse[f.Path] = rec.Id
			}
		}
		db.mu.Lock()
		db.reverse = reverse
		db.mu.Unlock()
	}

	id, ok := reverse[path]
	return id, ok
}
