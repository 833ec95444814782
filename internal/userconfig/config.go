// Package userconfig implements the merge chain that turns a profile's
// declared defaults, the user's global configuration file, per-atom
// overrides, and transient CLI flags into the single
// flag/keyword/license/mask view the resolver (internal/gps) consults.
package userconfig

import (
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/corebrew/corebrew/internal/gps"
)

// Ring mirrors gps.KeywordRing without importing it into the TOML tags,
// since the file format spells rings as lowercase words.
type Ring = gps.KeywordRing

func parseRing(s string) (Ring, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stable":
		return gps.Stable, nil
	case "testing", "~arch":
		return gps.Testing, nil
	case "unstable":
		return gps.Unstable, nil
	default:
		return gps.Stable, errors.Errorf("userconfig: unknown keyword ring %q", s)
	}
}

// profileFile is the profile-layer TOML shape: the distribution/overlay's
// declared defaults, analogous to a portage profile's make.defaults.
type profileFile struct {
	UseFlags       map[string]bool `toml:"use_flags"`
	AcceptKeywords string          `toml:"accept_keywords"`
}

// globalFile is the user's own top-level configuration (corebrew.toml).
type globalFile struct {
	UseFlags        map[string]bool     `toml:"use_flags"`
	AcceptKeywords  string              `toml:"accept_keywords"`
	AcceptLicenses  []string            `toml:"accept_licenses"`
	PackageUse      []perAtomUse        `toml:"package_use"`
	PackageKeywords []perAtomKeyword    `toml:"package_keywords"`
	PackageMask     []string            `toml:"package_mask"`
	PackageUnmask   []string            `toml:"package_unmask"`
	Variables       map[string]string   `toml:"variables"`
}

type perAtomUse struct {
	Atom  string          `toml:"atom"`
	Flags map[string]bool `toml:"flags"`
}

type perAtomKeyword struct {
	Atom string `toml:"atom"`
	Ring string `toml:"ring"`
}

// Config is the merged view handed to the resolver. It implements
// gps.ConfigProvider directly.
type Config struct {
	profileFlags map[string]bool
	profileRing  Ring

	globalFlags    map[string]bool
	globalRing     Ring
	globalLoaded   bool
	acceptLicenses map[string]bool

	perAtomFlags map[string]map[string]bool // atom string -> flag overrides
	perAtomRing  map[string]Ring

	masked   []*gps.Atom
	unmasked []*gps.Atom

	// transient holds CLI-supplied --use flag overrides for a single
	// invocation; it is the last and highest-priority layer.
	transientFlags map[string]bool
}

var _ gps.ConfigProvider = (*Config)(nil)

// New returns an empty Config with no layers loaded, suitable for
// programmatic construction in tests.
func New() *Config {
	return &Config{
		profileFlags:   make(map[string]bool),
		globalFlags:    make(map[string]bool),
		acceptLicenses: make(map[string]bool),
		perAtomFlags:   make(map[string]map[string]bool),
		perAtomRing:    make(map[string]Ring),
		transientFlags: make(map[string]bool),
	}
}

// LoadProfile parses a profile-layer TOML document (distribution/overlay
// defaults, lowest priority).
func (c *Config) LoadProfile(data []byte) error {
	var pf profileFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return errors.Wrap(err, "userconfig: parsing profile")
	}
	c.profileFlags = pf.UseFlags
	if c.profileFlags == nil {
		c.profileFlags = make(map[string]bool)
	}
	ring, err := parseRing(pf.AcceptKeywords)
	if err != nil {
		return err
	}
	c.profileRing = ring
	return nil
}

// LoadGlobal parses the user's global configuration file, expanding
// ${NAME}-style variables declared in its own [variables] table before
// the rest of the document is interpreted.
func (c *Config) LoadGlobal(data []byte) error {
	var gf globalFile
	if err := toml.Unmarshal(data, &gf); err != nil {
		return errors.Wrap(err, "userconfig: parsing global config")
	}

	vars := gf.Variables
	expand := func(s string) string { return expandVars(s, vars) }

	c.globalFlags = gf.UseFlags
	if c.globalFlags == nil {
		c.globalFlags = make(map[string]bool)
	}
	ring, err := parseRing(expand(gf.AcceptKeywords))
	if err != nil {
		return err
	}
	c.globalRing = ring
	c.globalLoaded = true

	c.acceptLicenses = make(map[string]bool, len(gf.AcceptLicenses))
	for _, lic := range gf.AcceptLicenses {
		c.acceptLicenses[expand(lic)] = true
	}

	c.perAtomFlags = make(map[string]map[string]bool, len(gf.PackageUse))
	for _, pu := range gf.PackageUse {
		a, err := gps.ParseAtom(expand(pu.Atom))
		if err != nil {
			return errors.Wrapf(err, "userconfig: package_use entry %q", pu.Atom)
		}
		c.perAtomFlags[a.String()] = pu.Flags
	}

	c.perAtomRing = make(map[string]Ring, len(gf.PackageKeywords))
	for _, pk := range gf.PackageKeywords {
		a, err := gps.ParseAtom(expand(pk.Atom))
		if err != nil {
			return errors.Wrapf(err, "userconfig: package_keywords entry %q", pk.Atom)
		}
		r, err := parseRing(pk.Ring)
		if err != nil {
			return err
		}
		c.perAtomRing[a.String()] = r
	}

	c.masked = nil
	for _, raw := range gf.PackageMask {
		a, err := gps.ParseAtom(expand(raw))
		if err != nil {
			return errors.Wrapf(err, "userconfig: package_mask entry %q", raw)
		}
		c.masked = append(c.masked, a)
	}
	c.unmasked = nil
	for _, raw := range gf.PackageUnmask {
		a, err := gps.ParseAtom(expand(raw))
		if err != nil {
			return errors.Wrapf(err, "userconfig: package_unmask entry %q", raw)
		}
		c.unmasked = append(c.unmasked, a)
	}
	return nil
}

// SetTransientFlags installs the final, highest-priority CLI-supplied
// --use overrides for the current invocation.
func (c *Config) SetTransientFlags(flags map[string]bool) {
	c.transientFlags = flags
}

// EnabledFlags implements gps.ConfigProvider: defaults are overridden
// layer by layer (profile -> global -> per-atom -> transient), each
// layer's entries replacing (not merging with) the prior layer's polarity
// for the same flag name.
func (c *Config) EnabledFlags(id gps.PackageId, defaults map[string]bool) map[string]bool {
	out := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	applyLayer(out, c.profileFlags)
	applyLayer(out, c.globalFlags)
	for atomStr, flags := range c.perAtomFlags {
		a, err := gps.ParseAtom(atomStr)
		if err != nil {
			continue
		}
		if a.Id == id {
			applyLayer(out, flags)
		}
	}
	applyLayer(out, c.transientFlags)
	return out
}

func applyLayer(dst, layer map[string]bool) {
	for k, v := range layer {
		dst[k] = v
	}
}

// AcceptsKeyword implements gps.ConfigProvider, honoring a per-atom
// override over the global ring over the profile's default ring.
func (c *Config) AcceptsKeyword(id gps.PackageId, k gps.KeywordRing) bool {
	ring := c.profileRing
	if c.globalLoaded {
		ring = c.globalRing
	}
	for atomStr, r := range c.perAtomRing {
		a, err := gps.ParseAtom(atomStr)
		if err != nil {
			continue
		}
		if a.Id == id {
			ring = r
		}
	}
	return k <= ring
}

// AcceptsLicense implements gps.ConfigProvider. An empty accept-list
// means "accept everything", the usual convention for an unconfigured
// optional TOML table.
func (c *Config) AcceptsLicense(license string) bool {
	if len(c.acceptLicenses) == 0 {
		return true
	}
	return c.acceptLicenses[license]
}

// IsMasked implements gps.ConfigProvider: a version is masked if any
// package_mask atom admits it and no later package_unmask atom also
// admits it (unmask always wins, mirroring Portage's mask/unmask order).
func (c *Config) IsMasked(id gps.PackageId, v gps.Version) bool {
	masked := false
	for _, a := range c.masked {
		if a.Id == id && a.Constraint.Admits(v) {
			masked = true
			break
		}
	}
	if !masked {
		return false
	}
	for _, a := range c.unmasked {
		if a.Id == id && a.Constraint.Admits(v) {
			return false
		}
	}
	return true
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandVars replaces ${NAME} references first from the document's own
// [variables] table, falling back to the process environment, and
// finally leaving the reference untouched if neither source defines it.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}
