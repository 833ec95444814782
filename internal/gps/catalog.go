package gps

import (
	"sort"
	"strings"
	"sync"
)

// repoRecord pairs a PackageRecord with the priority of the repository it
// came from, so the catalog can resolve cross-repository collisions by
// precedence: higher priority wins on duplicate atoms.
type repoRecord struct {
	rec      *PackageRecord
	priority int
}

// Catalog is the canonical mapping from PackageId to the set of candidate
// PackageRecords, merged across repositories with precedence. It is
// rebuilt after every repository sync and is read-only within a
// resolution session.
type Catalog struct {
	mu      sync.RWMutex
	byID    map[PackageId][]repoRecord
	reverse map[string]*PackageRecord // file path -> owning record, built on demand
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[PackageId][]repoRecord)}
}

// Load replaces the catalog's contents with the given records, each
// tagged with the priority of its originating repository. Records sharing
// (PackageId, Version, Slot) are collapsed here, at load time, to the one
// from the highest-priority repository; each PackageId's remaining
// records are kept newest-first.
func (c *Catalog) Load(records []*PackageRecord, priorityOf func(repo string) int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[PackageId][]repoRecord)
	c.reverse = nil
	for _, r := range records {
		c.byID[r.Id] = append(c.byID[r.Id], repoRecord{rec: r, priority: priorityOf(r.Repo)})
	}
	for id, recs := range c.byID {
		sorted := dedupeByPrecedence(recs)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].rec.Version.Compare(sorted[j].rec.Version) > 0
		})
		c.byID[id] = sorted
	}
}

// dedupeByPrecedence collapses entries that share (Version, Slot) to the
// highest-priority one (P9: overlay priority).
func dedupeByPrecedence(recs []repoRecord) []repoRecord {
	type key struct {
		v Version
		s Slot
	}
	best := make(map[key]repoRecord)
	for _, rr := range recs {
		k := key{rr.rec.Version, rr.rec.Slot}
		if cur, ok := best[k]; !ok || rr.priority > cur.priority {
			best[k] = rr
		}
	}
	out := make([]repoRecord, 0, len(best))
	for _, rr := range best {
		out = append(out, rr)
	}
	return out
}

// AllPackages returns a deduplicated list of every known PackageRecord,
// with overlay precedence already applied, sorted by PackageId and
// newest-first within each PackageId.
func (c *Catalog) AllPackages() []*PackageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*PackageRecord
	for _, recs := range c.byID {
		for _, rr := range recs {
			out = append(out, rr.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Id != out[j].Id {
			return out[i].Id.Less(out[j].Id)
		}
		return out[i].Version.Compare(out[j].Version) > 0
	})
	return out
}

// Lookup returns every candidate record for id, newest version first.
func (c *Catalog) Lookup(id PackageId) []*PackageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	recs := c.byID[id]
	out := make([]*PackageRecord, len(recs))
	for i, rr := range recs {
		out[i] = rr.rec
	}
	return out
}

// Search returns every record whose name contains the given fragment
// (case-insensitive), across all categories.
func (c *Catalog) Search(fragment string) []*PackageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	frag := strings.ToLower(fragment)
	var out []*PackageRecord
	for id, recs := range c.byID {
		if strings.Contains(strings.ToLower(id.Name), frag) {
			for _, rr := range recs {
				out = append(out, rr.rec)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id.Less(out[j].Id) })
	return out
}

// BuildReverseIndex constructs the file-ownership reverse index (path ->
// owning record) from a supplied set of (record, paths) pairs — typically
// populated by the installed database, since the catalog itself has no
// notion of what's actually on disk until something is installed.
func (c *Catalog) BuildReverseIndex(owners map[string]*PackageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reverse = owners
}

// OwnerOf returns the record owning path, if the reverse index has been
// built and contains it.
func (c *Catalog) OwnerOf(path string) (*PackageRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.reverse == nil {
		return nil, false
	}
	r, ok := c.reverse[path]
	return r, ok
}
