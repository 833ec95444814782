// Package corebrew ties the resolver, catalog, cache, build driver,
// transaction engine, and installed database together behind a single
// command surface: install, remove, update, sync, search, info,
// list-installed, build, verify, depclean, resume, audit, newuse. It is
// a thin orchestration layer that a CLI (cmd/corebrew) or another Go
// program can embed directly.
package corebrew

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/cache"
	"github.com/corebrew/corebrew/internal/gps"
	"github.com/corebrew/corebrew/internal/installdb"
	"github.com/corebrew/corebrew/internal/repo"
	"github.com/corebrew/corebrew/internal/userconfig"
)

// Ctx is the supporting context of the tool: every long-lived component
// wired to a single target root filesystem.
type Ctx struct {
	Root string // target root filesystem corebrew manages
	Log  *logrus.Logger

	Catalog *gps.Catalog
	Config  *userconfig.Config
	Repos   *repo.Manager
	Cache   *cache.Store
	Backend *buildengine.Driver
	DB      *installdb.DB
	World   *installdb.World
}

// NewContext wires up every component rooted at root: the installed
// database and world set under var/db and var/lib, the content-addressed
// cache under var/cache, and the overlay/repository manager under
// etc/corebrew. backendPath is the opaque build-backend executable; it
// need not exist yet, since Build's own resolution happens lazily on
// first invocation.
func NewContext(root, backendPath string, log *logrus.Logger) (*Ctx, error) {
	if log == nil {
		log = logrus.New()
	}

	db, err := installdb.New(filepath.Join(root, "var", "db", "corebrew"))
	if err != nil {
		return nil, err
	}

	cacheStore, err := cache.New(filepath.Join(root, "var", "cache", "corebrew"))
	if err != nil {
		return nil, err
	}

	repoMgr, err := repo.NewManager(filepath.Join(root, "etc", "corebrew", "repos.json"))
	if err != nil {
		return nil, err
	}

	return &Ctx{
		Root:    root,
		Log:     log,
		Catalog: gps.NewCatalog(),
		Config:  userconfig.New(),
		Repos:   repoMgr,
		Cache:   cacheStore,
		Backend: buildengine.NewDriver(backendPath, log),
		DB:      db,
		World:   installdb.NewWorld(filepath.Join(root, "var", "lib", "corebrew", "world.json")),
	}, nil
}

// resolver builds a fresh gps.Resolver bound to this context's catalog,
// configuration, and installed database — cheap enough to construct per
// call rather than cached, since none of its fields are themselves
// expensive to reference.
func (c *Ctx) resolver() *gps.Resolver {
	return &gps.Resolver{Catalog: c.Catalog, Config: c.Config, Installed: c.DB}
}

// LoadCatalog rebuilds the package catalog from every synced repository's
// package index. entries maps a repository name to the records it
// contributes; callers are expected to have parsed each repository's own
// index format before calling this.
func (c *Ctx) LoadCatalog(entries map[string][]*gps.PackageRecord) {
	var records []*gps.PackageRecord
	for _, recs := range entries {
		records = append(records, recs...)
	}
	c.Catalog.Load(records, c.Repos.PriorityOf)
}
