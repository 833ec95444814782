package corebrew

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
	"github.com/corebrew/corebrew/internal/installdb"
	"github.com/corebrew/corebrew/internal/txn"
)

// Options gathers the transient, per-invocation knobs common to every
// mutating operation. Each operation returns either a ResolutionPlan
// (when Pretend is set, the plan is never applied) or the result of
// applying it.
type Options struct {
	gps.ResolveOptions
	Pretend bool
	Env     buildengine.Environment
	// Oneshot installs without recording world membership: the package is
	// built and installed normally but never added to (or needed to be
	// removed from) the world set.
	Oneshot bool
}

// Install resolves atoms to a plan and, unless opts.Pretend, builds and
// applies every non-remove step, then adds each requested atom to the
// world set unless opts.Oneshot asked for the package without recording
// it as explicit.
func (c *Ctx) Install(ctx context.Context, atoms []string, opts Options) (*gps.ResolutionPlan, error) {
	goals, err := parseAtoms(atoms)
	if err != nil {
		return nil, err
	}

	plan, err := c.resolver().Resolve(goals, opts.ResolveOptions)
	if err != nil {
		return nil, err
	}
	if opts.Pretend {
		return plan, nil
	}

	if err := c.applyPlan(ctx, plan, opts.Env); err != nil {
		return plan, err
	}

	if opts.Oneshot {
		return plan, nil
	}
	for _, a := range goals {
		if err := c.World.Add(a.String()); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// applyPlan builds an artifact for every non-remove step (remove steps
// carry no artifact) and runs the whole set through a single transaction,
// so a partially-built plan either commits or rolls back together.
func (c *Ctx) applyPlan(ctx context.Context, plan *gps.ResolutionPlan, env buildengine.Environment) error {
	items := make([]txn.Item, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		item := txn.Item{Step: step}
		if step.Kind != gps.StepRemove {
			stageDir := filepath.Join(c.Root, "var", "tmp", "corebrew", step.Record.Id.Category, step.Record.Id.Name)
			artifact, err := c.Backend.Build(ctx, step.Record, step.Flags, env, stageDir)
			if err != nil {
				return err
			}
			item.Artifact = artifact
		}
		items = append(items, item)
	}
	tx := txn.New(c.Root, c.DB, items, false, c.Log)
	return tx.Execute(ctx)
}

// Remove uninstalls the given atoms: each must already be installed, and
// is turned into a StepRemove plan entry so it runs through the same
// transaction engine as an install. Removed atoms are dropped from the
// world set regardless of whether they were members.
func (c *Ctx) Remove(ctx context.Context, atoms []string, opts Options) (*gps.ResolutionPlan, error) {
	goals, err := parseAtoms(atoms)
	if err != nil {
		return nil, err
	}

	plan := &gps.ResolutionPlan{}
	for _, a := range goals {
		rec, ok := c.findInstalled(a)
		if !ok {
			return nil, &gps.NotFoundError{Atom: a.String()}
		}
		plan.Steps = append(plan.Steps, gps.PlanStep{Record: rec, Flags: nil, Kind: gps.StepRemove})
	}
	plan.Totals()

	if opts.Pretend {
		return plan, nil
	}

	items := make([]txn.Item, len(plan.Steps))
	for i, step := range plan.Steps {
		items[i] = txn.Item{Step: step}
	}
	tx := txn.New(c.Root, c.DB, items, false, c.Log)
	if err := tx.Execute(ctx); err != nil {
		return plan, err
	}

	for _, a := range goals {
		if err := c.World.Remove(a.String()); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// findInstalled locates the InstalledRecord an atom resolves against and
// returns a synthetic PackageRecord carrying just enough identity for a
// StepRemove plan entry (the build/flag fields a remove step never
// consults are left zero).
func (c *Ctx) findInstalled(a *gps.Atom) (*gps.PackageRecord, bool) {
	for _, rec := range c.DB.List() {
		if rec.Id != a.Id {
			continue
		}
		if a.Slot != nil && *a.Slot != rec.Slot {
			continue
		}
		if !a.Constraint.Admits(rec.Version) {
			continue
		}
		return &gps.PackageRecord{
			Id:      rec.Id,
			Version: rec.Version,
			Slot:    rec.Slot,
			Deps:    rec.Deps,
			Repo:    rec.Repo,
		}, true
	}
	return nil, false
}

// Update re-resolves either the given atoms or, if none are given, every
// current world member. It sets UpdateOnly and Deep on the resolve
// options, but the resolver acts on neither flag, so the goals are
// resolved exactly as Install resolves them.
func (c *Ctx) Update(ctx context.Context, atoms []string, opts Options) (*gps.ResolutionPlan, error) {
	goals, err := c.worldOrAtoms(atoms)
	if err != nil {
		return nil, err
	}
	opts.ResolveOptions.UpdateOnly = true
	opts.ResolveOptions.Deep = true

	plan, err := c.resolver().Resolve(goals, opts.ResolveOptions)
	if err != nil {
		return nil, err
	}
	if opts.Pretend {
		return plan, nil
	}
	return plan, c.applyPlan(ctx, plan, opts.Env)
}

// Newuse re-resolves world members (or the given atoms) with NewUse set,
// surfacing StepRebuild entries for any installed package whose flag
// vector no longer matches the merged configuration (a profile/global
// USE-flag default flip, in Portage terms).
func (c *Ctx) Newuse(ctx context.Context, atoms []string, opts Options) (*gps.ResolutionPlan, error) {
	goals, err := c.worldOrAtoms(atoms)
	if err != nil {
		return nil, err
	}
	opts.ResolveOptions.NewUse = true
	opts.ResolveOptions.Deep = true

	plan, err := c.resolver().Resolve(goals, opts.ResolveOptions)
	if err != nil {
		return nil, err
	}
	if opts.Pretend {
		return plan, nil
	}
	return plan, c.applyPlan(ctx, plan, opts.Env)
}

func (c *Ctx) worldOrAtoms(atoms []string) ([]*gps.Atom, error) {
	if len(atoms) > 0 {
		return parseAtoms(atoms)
	}
	world, err := c.World.List()
	if err != nil {
		return nil, err
	}
	return parseAtoms(world)
}

// Sync refreshes the named repositories (or every configured repository,
// if names is empty) and rebuilds nothing on its own: callers re-index
// and call LoadCatalog once a repository's tree has moved.
func (c *Ctx) Sync(ctx context.Context, names ...string) error {
	return c.Repos.Sync(ctx, names...)
}

// Search returns every catalog record whose name contains query.
func (c *Ctx) Search(query string) []*gps.PackageRecord {
	return c.Catalog.Search(query)
}

// Info returns the newest candidate record for atom's identity, the way
// a single-package "show me what you know" query is expected to behave.
func (c *Ctx) Info(atom string) (*gps.PackageRecord, error) {
	a, err := gps.ParseAtom(atom)
	if err != nil {
		return nil, err
	}
	candidates := c.Catalog.Lookup(a.Id)
	if len(candidates) == 0 {
		return nil, &gps.NotFoundError{Atom: atom}
	}
	return candidates[0], nil
}

// ListInstalled returns every installed record whose PackageId category
// matches categoryFilter, or every installed record if categoryFilter is
// empty.
func (c *Ctx) ListInstalled(categoryFilter string) []*installdb.InstalledRecord {
	all := c.DB.List()
	if categoryFilter == "" {
		return all
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Id.Category == categoryFilter {
			out = append(out, rec)
		}
	}
	return out
}

// Build invokes the build backend directly for a single atom's newest
// catalog candidate, bypassing the resolver entirely — an escape hatch
// for rebuilding one package without touching its dependency graph.
func (c *Ctx) Build(ctx context.Context, atom string, opts Options) (*buildengine.BuildArtifact, error) {
	rec, err := c.Info(atom)
	if err != nil {
		return nil, err
	}
	flags := c.Config.EnabledFlags(rec.Id, rec.DefaultFlags())
	stageDir := filepath.Join(c.Root, "var", "tmp", "corebrew", rec.Id.Category, rec.Id.Name)
	return c.Backend.Build(ctx, rec, flags, opts.Env, stageDir)
}

// Verify walks every installed record's manifest and reports any file
// that is missing or whose on-disk content no longer matches its
// recorded digest, skipping configuration-protected paths since those
// are expected to diverge once a user edits them.
func (c *Ctx) Verify() ([]VerifyIssue, error) {
	var issues []VerifyIssue
	for _, rec := range c.DB.List() {
		for _, f := range rec.Manifest {
			if f.ConfigProtected || f.Type == buildengine.FileDir {
				continue
			}
			path := filepath.Join(c.Root, f.Path)
			ok, err := verifyDigest(path, f.Digest)
			if err != nil {
				issues = append(issues, VerifyIssue{Owner: rec.Id, Path: f.Path, Reason: err.Error()})
				continue
			}
			if !ok {
				issues = append(issues, VerifyIssue{Owner: rec.Id, Path: f.Path, Reason: "digest mismatch"})
			}
		}
	}
	return issues, nil
}

// VerifyIssue reports one manifest entry that failed verification.
type VerifyIssue struct {
	Owner  gps.PackageId
	Path   string
	Reason string
}

// Depclean computes the set of installed packages unreachable from the
// world set by runtime/build/link dependency edges and, unless
// opts.Pretend, removes them: the reverse of install, pruning what
// nothing explicit still needs.
func (c *Ctx) Depclean(ctx context.Context, opts Options) (*gps.ResolutionPlan, error) {
	world, err := c.World.List()
	if err != nil {
		return nil, err
	}
	worldIds := make(map[gps.PackageId]bool, len(world))
	for _, atomStr := range world {
		a, err := gps.ParseAtom(atomStr)
		if err != nil {
			continue
		}
		worldIds[a.Id] = true
	}

	installed := c.DB.List()
	byID := make(map[gps.PackageId]*installdb.InstalledRecord, len(installed))
	for _, rec := range installed {
		byID[rec.Id] = rec
	}

	reachable := make(map[gps.PackageId]bool, len(installed))
	var walk func(id gps.PackageId)
	walk = func(id gps.PackageId) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		rec, ok := byID[id]
		if !ok {
			return
		}
		for _, dep := range rec.Deps {
			if dep.Inverted {
				continue
			}
			walk(dep.Atom.Id)
		}
	}
	for id := range worldIds {
		walk(id)
	}

	plan := &gps.ResolutionPlan{}
	for _, rec := range installed {
		if reachable[rec.Id] {
			continue
		}
		plan.Steps = append(plan.Steps, gps.PlanStep{
			Record: &gps.PackageRecord{Id: rec.Id, Version: rec.Version, Slot: rec.Slot, Deps: rec.Deps, Repo: rec.Repo},
			Kind:   gps.StepRemove,
		})
	}
	plan.Totals()

	if opts.Pretend || len(plan.Steps) == 0 {
		return plan, nil
	}

	items := make([]txn.Item, len(plan.Steps))
	for i, step := range plan.Steps {
		items[i] = txn.Item{Step: step}
	}
	tx := txn.New(c.Root, c.DB, items, false, c.Log)
	return plan, tx.Execute(ctx)
}

// Audit is the preserved-library audit. It always returns nil: preserved
// libraries are reported only by txn.Transaction.Preserved, for the
// transaction that found them, and nothing is stored for a later audit
// to read.
func (c *Ctx) Audit() []installdb.InstalledRecord {
	// A from-scratch audit pass would need a persistent preserved-library
	// ledger (the transaction engine only reports preservations for the
	// transaction that created them); until one exists this reports
	// nothing rather than guessing from manifest state alone.
	return nil
}

// Resume re-applies a previously computed plan, for recovering from a
// transaction interrupted between Apply and Record. corebrew does not
// persist in-flight plans to disk yet, so Resume's only currently
// supported recovery path is re-running Install/Update with the same
// atoms: Apply is idempotent (installdb.DB.Put overwrites) and the
// collision check re-validates cleanly once a failed transaction's
// partial writes have been rolled back.
func (c *Ctx) Resume(ctx context.Context, plan *gps.ResolutionPlan, opts Options) error {
	if plan == nil {
		return errors.New("corebrew: no in-flight plan to resume")
	}
	return c.applyPlan(ctx, plan, opts.Env)
}

func parseAtoms(atoms []string) ([]*gps.Atom, error) {
	out := make([]*gps.Atom, 0, len(atoms))
	for _, s := range atoms {
		a, err := gps.ParseAtom(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
