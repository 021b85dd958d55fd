// Package config loads the declarative package list a coordinator fetches
// and caches, validating each entry's version string and optionally
// narrowing the declared set with include/exclude glob filters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/Moka-Reads/QuickFetch/internal/entry"
	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/pelletier/go-toml/v2"
	"github.com/ryanuber/go-glob"
)

// Package is a declared fetch target, either a SimpleEntry shape (Name,
// Version, URL) or a GithubEntry shape (Owner, Repo, Tag, Asset). Both
// shapes decode into the same struct since the config schema doesn't
// tag which one a document entry is; IsGithub decides based on which
// fields are populated.
type Package struct {
	Name    string `json:"name,omitempty" toml:"name,omitempty"`
	Version string `json:"version,omitempty" toml:"version,omitempty"`
	URL     string `json:"url,omitempty" toml:"url,omitempty"`

	Owner string `json:"owner,omitempty" toml:"owner,omitempty"`
	Repo  string `json:"repo,omitempty" toml:"repo,omitempty"`
	Tag   string `json:"tag,omitempty" toml:"tag,omitempty"`
	Asset string `json:"asset,omitempty" toml:"asset,omitempty"`
}

// IsGithub reports whether the package was declared in the GithubEntry
// shape rather than the SimpleEntry shape.
func (p Package) IsGithub() bool {
	return p.Owner != "" || p.Repo != "" || p.Asset != ""
}

// VerifyValidVersion reports whether Version parses as a semantic version
// under the MAJOR.MINOR.PATCH[-pre][+build] grammar. GithubEntry packages
// are exempt: Tag is a release tag, not necessarily a semver string.
func (p Package) VerifyValidVersion() bool {
	if p.IsGithub() {
		return true
	}
	_, err := semver.StrictNewVersion(p.Version)
	return err == nil
}

// ToEntry converts the declared package into the generic entry.Entry the
// coordinator dispatches over.
func (p Package) ToEntry() entry.Entry {
	if p.IsGithub() {
		return entry.NewGithubEntry(p.Owner, p.Repo, p.Tag, p.Asset)
	}
	return entry.NewSimpleEntry(p.Name, p.Version, p.URL)
}

// Document is the top-level shape of a config file: a flat list of
// packages under the "packages" key.
type Document struct {
	Packages []Package `json:"packages" toml:"packages"`
}

// Format selects the decoder used for a config file.
type Format int

const (
	FormatJSON Format = iota
	FormatTOML
)

// FormatFromPath infers a Format from a file's extension, defaulting to
// JSON when the extension is unrecognized.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// HardwareConfig toggles platform-specific AES instruction use; see
// internal/crypto.IsHardwareAccelerationEnabled.
type HardwareConfig struct {
	EnableAESNI    bool `json:"enable_aesni" toml:"enable_aesni"`
	EnableARMv8AES bool `json:"enable_armv8_aes" toml:"enable_armv8_aes"`
}

// Filter narrows a loaded package set with glob include/exclude lists,
// matched against each package's Name. Absent lists impose no restriction.
// A name excluded by Exclude is dropped even if it also matches Include.
type Filter struct {
	Include []string
	Exclude []string
}

func (f Filter) apply(pkgs []Package) []Package {
	if len(f.Include) == 0 && len(f.Exclude) == 0 {
		return pkgs
	}
	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		if len(f.Exclude) > 0 && matchesAny(f.Exclude, p.Name) {
			continue
		}
		if len(f.Include) > 0 && !matchesAny(f.Include, p.Name) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if glob.Glob(pattern, name) {
			return true
		}
	}
	return false
}

// Load reads and decodes the config file at path, validates every
// package's version, and applies filter (the zero Filter is a no-op).
func Load(path string, filter Filter) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, qferrors.Config("load", err)
	}

	var doc Document
	switch FormatFromPath(path) {
	case FormatTOML:
		err = toml.Unmarshal(raw, &doc)
	default:
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, qferrors.Config("decode", fmt.Errorf("%s: %w", path, err))
	}
	if doc.Packages == nil {
		return nil, qferrors.Config("validate", fmt.Errorf("%s: missing required \"packages\" field", path))
	}

	for _, pkg := range doc.Packages {
		if !pkg.VerifyValidVersion() {
			return nil, qferrors.Config("validate", fmt.Errorf("package %q: invalid semantic version %q", pkg.Name, pkg.Version))
		}
	}

	doc.Packages = filter.apply(doc.Packages)
	return &doc, nil
}

// Entries converts every declared package into the generic entry.Entry
// shape the coordinator consumes.
func (d *Document) Entries() []entry.Entry {
	out := make([]entry.Entry, 0, len(d.Packages))
	for _, p := range d.Packages {
		out = append(out, p.ToEntry())
	}
	return out
}
