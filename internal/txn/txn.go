// Package txn implements the installation transaction engine. A
// Transaction carries a resolved set of build artifacts through four
// phases — stage, collision-check, preserved-library detection, and
// apply — with a single rollback point immediately before Apply, and a
// final record/hooks phase. Apply follows a write-temp/fsync/rename
// discipline so a crash mid-apply never leaves a half-written file where
// a real one used to be.
package txn

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
	"github.com/corebrew/corebrew/internal/installdb"
)

// Item is one step of a transaction: a resolved plan step paired with
// the build artifact that will provide its files (nil for a StepRemove
// step, which has nothing to stage).
type Item struct {
	Step     gps.PlanStep
	Artifact *buildengine.BuildArtifact
}

// CollisionError reports a file claimed by more than one item in the
// same transaction, or by an already-installed package not being
// replaced by this transaction.
type CollisionError struct {
	Path       string
	ClaimedBy  []string
}

func (e *CollisionError) Error() string {
	return "txn: file collision at " + e.Path + ", claimed by " + strings.Join(e.ClaimedBy, ", ")
}

// PreservedLibrary reports a shared library that an upgrade or rebuild
// leaves behind: listed in the installed manifest, absent from the new
// artifact — the same problem Portage's preserved-libs feature solves.
// PreservedAs is a hashed name reported for it; the transaction does not
// rename or move the file to that name, and the installed database does
// not record it.
type PreservedLibrary struct {
	OriginalPath string
	PreservedAs  string
	Owner        gps.PackageId
}

// Transaction applies a resolved, built plan to Root.
type Transaction struct {
	Root    string
	DB      *installdb.DB
	Pretend bool
	Log     *logrus.Logger

	items     []Item
	preserved []PreservedLibrary
}

// New returns a Transaction for the given items.
func New(root string, db *installdb.DB, items []Item, pretend bool, log *logrus.Logger) *Transaction {
	if log == nil {
		log = logrus.New()
	}
	return &Transaction{Root: root, DB: db, Pretend: pretend, Log: log, items: items}
}

// Execute runs every phase in order, stopping (and, for Apply, rolling
// back) on the first error.
func (t *Transaction) Execute(ctx context.Context) error {
	if err := t.checkCollisions(); err != nil {
		return err
	}
	t.detectPreservedLibraries()

	if t.Pretend {
		t.Log.Info("pretend mode: plan validated, no changes made")
		return nil
	}

	stagedRoots, err := t.apply(ctx)
	if err != nil {
		t.rollback(stagedRoots)
		return err
	}

	if err := t.record(); err != nil {
		// Apply already committed files to Root; a recording failure is
		// surfaced but does not unwind the filesystem changes, since
		// partially-recorded-but-installed is recoverable by re-running
		// (idempotent Put), whereas unwinding already-live files risks
		// leaving the system in a worse state than either endpoint.
		return errors.Wrap(err, "txn: files applied but recording to installed database failed")
	}

	t.runHooks()
	return nil
}

// checkCollisions is phase 2: no two items in the same transaction may
// claim the same path, and no item may claim a path already owned by an
// installed package this transaction isn't also replacing.
func (t *Transaction) checkCollisions() error {
	claimants := make(map[string][]string)
	replacing := make(map[gps.PackageId]bool)
	for _, it := range t.items {
		replacing[it.Step.Record.Id] = true
	}

	for _, it := range t.items {
		if it.Artifact == nil {
			continue
		}
		who := it.Step.Record.Id.String()
		for _, f := range it.Artifact.Manifest {
			if f.Type == buildengine.FileDir {
				continue // directories are expected to be shared
			}
			claimants[f.Path] = append(claimants[f.Path], who)

			if t.DB != nil {
				if owner, ok := t.DB.OwnerOf(f.Path); ok && !replacing[owner] {
					claimants[f.Path] = append(claimants[f.Path], owner.String()+" (installed)")
				}
			}
		}
	}

	paths := make([]string, 0, len(claimants))
	for p := range claimants {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if len(claimants[p]) > 1 {
			return &CollisionError{Path: p, ClaimedBy: claimants[p]}
		}
	}
	return nil
}

// detectPreservedLibraries is phase 3: for every package being replaced
// in-place (an upgrade/rebuild step), any shared-library file present in
// the installed manifest but absent from the new artifact's manifest is
// added to the Preserved list with a hashed PreservedAs name. Nothing on
// disk is renamed or moved by this phase.
func (t *Transaction) detectPreservedLibraries() {
	if t.DB == nil {
		return
	}
	for _, it := range t.items {
		if it.Step.Kind != gps.StepUpgrade && it.Step.Kind != gps.StepRebuild {
			continue
		}
		old, ok := t.DB.Get(it.Step.Record.Id, it.Step.Record.Slot)
		if !ok {
			continue
		}
		newPaths := make(map[string]bool, len(it.Artifact.Manifest))
		if it.Artifact != nil {
			for _, f := range it.Artifact.Manifest {
				newPaths[f.Path] = true
			}
		}
		for _, f := range old.Manifest {
			if !isSharedLibrary(f.Path) {
				continue
			}
			if newPaths[f.Path] {
				continue
			}
			t.preserved = append(t.preserved, PreservedLibrary{
				OriginalPath: f.Path,
				PreservedAs:  f.Path + ".preserved-" + shortDigest(f.Digest),
				Owner:        old.Id,
			})
		}
	}
}

func isSharedLibrary(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(base, ".so") || strings.HasSuffix(base, ".dylib") || strings.HasSuffix(base, ".dll")
}

func shortDigest(d string) string {
	if len(d) > 8 {
		return d[:8]
	}
	return d
}

// Preserved returns the libraries detected by detectPreservedLibraries,
// for callers that want to report them (e.g. `corebrew audit`).
func (t *Transaction) Preserved() []PreservedLibrary { return t.preserved }

// apply is phase 4: copy each item's staged files into Root via
// write-temp/fsync/rename, returning every path it successfully wrote so
// rollback can undo a partial failure. This is the transaction's single
// rollback point: once apply starts, a failure unwinds everything it has
// done so far before Execute returns.
func (t *Transaction) apply(ctx context.Context) ([]string, error) {
	var written []string
	for _, it := range t.items {
		if it.Step.Kind == gps.StepRemove {
			removed, err := t.applyRemove(it)
			written = append(written, removed...)
			if err != nil {
				return written, err
			}
			continue
		}
		if it.Artifact == nil {
			return written, errors.Errorf("txn: %s has no build artifact to apply", it.Step.Record.Id.String())
		}
		for _, f := range it.Artifact.Manifest {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			default:
			}
			dest := filepath.Join(t.Root, f.Path)
			if err := t.applyOne(it.Artifact.RootDir, f, dest); err != nil {
				return written, errors.Wrapf(err, "txn: applying %s", f.Path)
			}
			written = append(written, dest)
		}
	}
	return written, nil
}

func (t *Transaction) applyOne(stageRoot string, f buildengine.FileManifestEntry, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	switch f.Type {
	case buildengine.FileDir:
		return os.MkdirAll(dest, 0o755)
	case buildengine.FileSymlink:
		target, err := os.Readlink(filepath.Join(stageRoot, f.Path))
		if err != nil {
			return err
		}
		os.Remove(dest)
		return os.Symlink(target, dest)
	default:
		src := filepath.Join(stageRoot, f.Path)
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		tmp := dest + ".corebrew-tmp"
		out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			out.Close()
			return err
		}
		if err := out.Sync(); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Rename(tmp, dest)
	}
}

func (t *Transaction) applyRemove(it Item) ([]string, error) {
	if t.DB == nil {
		return nil, nil
	}
	old, ok := t.DB.Get(it.Step.Record.Id, it.Step.Record.Slot)
	if !ok {
		return nil, nil
	}
	var removed []string
	for _, f := range old.Manifest {
		if f.Type == buildengine.FileDir {
			continue
		}
		path := filepath.Join(t.Root, f.Path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// rollback best-effort removes every path apply wrote before it failed.
// It cannot undo a remove step (the old files are already gone), which is
// the one case the single-rollback-point design does not fully cover;
// practically this means a failed transaction that mixes upgrades and
// removals can leave removed packages removed even if the upgrades are
// unwound.
func (t *Transaction) rollback(written []string) {
	for i := len(written) - 1; i >= 0; i-- {
		os.Remove(written[i])
	}
	t.Log.WithField("paths", len(written)).Warn("transaction failed, rolled back applied files")
}

// record is phase 5: write each item's InstalledRecord to the database.
func (t *Transaction) record() error {
	if t.DB == nil {
		return nil
	}
	for _, it := range t.items {
		if it.Step.Kind == gps.StepRemove {
			if err := t.DB.Remove(it.Step.Record.Id, it.Step.Record.Slot); err != nil {
				return err
			}
			continue
		}
		rec := &installdb.InstalledRecord{
			Id:      it.Step.Record.Id,
			Version: it.Step.Record.Version,
			Slot:    it.Step.Record.Slot,
			Flags:   it.Step.Flags,
			Deps:    it.Step.Record.Deps,
			Repo:    it.Step.Record.Repo,
		}
		if it.Artifact != nil {
			rec.Manifest = it.Artifact.Manifest
		}
		if err := t.DB.Put(rec); err != nil {
			return err
		}
	}
	return nil
}

// runHooks is phase 6: post-install/post-remove hooks. corebrew's hook
// contract (like the build backend's) is an external script invoked with
// a fixed argument convention; wiring that contract is out of this
// package's scope once its target list is known, so this is a named stub
// other components extend.
func (t *Transaction) runHooks() {
	for _, it := range t.items {
		t.Log.WithField("package", it.Step.Record.Id.String()).Debug("no post-phase hooks configured")
	}
}
