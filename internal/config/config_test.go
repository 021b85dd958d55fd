package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeTemp(t, "packages.json", `{
		"packages": [
			{"name": "widget", "version": "1.2.3", "url": "http://mirror/widget"},
			{"name": "gadget", "version": "0.9.0-rc.1+build.5", "url": "http://mirror/gadget"}
		]
	}`)

	doc, err := Load(path, Filter{})
	require.NoError(t, err)
	require.Len(t, doc.Packages, 2)
	require.Equal(t, "widget", doc.Packages[0].Name)
}

func TestLoad_TOML(t *testing.T) {
	path := writeTemp(t, "packages.toml", "[[packages]]\nname = \"widget\"\nversion = \"1.0.0\"\nurl = \"http://mirror/widget\"\n")

	doc, err := Load(path, Filter{})
	require.NoError(t, err)
	require.Len(t, doc.Packages, 1)
	require.Equal(t, "widget", doc.Packages[0].Name)
}

func TestLoad_RejectsInvalidVersion(t *testing.T) {
	path := writeTemp(t, "packages.json", `{"packages": [{"name": "bad", "version": "not-a-version", "url": "http://x"}]}`)

	_, err := Load(path, Filter{})
	require.Error(t, err)
}

func TestLoad_IncludeExcludeFilter(t *testing.T) {
	path := writeTemp(t, "packages.json", `{
		"packages": [
			{"name": "widget-linux", "version": "1.0.0", "url": "http://x/1"},
			{"name": "widget-darwin", "version": "1.0.0", "url": "http://x/2"},
			{"name": "gadget-linux", "version": "1.0.0", "url": "http://x/3"}
		]
	}`)

	doc, err := Load(path, Filter{Include: []string{"widget-*"}})
	require.NoError(t, err)
	require.Len(t, doc.Packages, 2)

	doc, err = Load(path, Filter{Include: []string{"widget-*"}, Exclude: []string{"*-darwin"}})
	require.NoError(t, err)
	require.Len(t, doc.Packages, 1)
	require.Equal(t, "widget-linux", doc.Packages[0].Name)
}

func TestPackage_ToEntry(t *testing.T) {
	p := Package{Name: "widget", Version: "1.0.0", URL: "http://mirror/widget"}
	e := p.ToEntry()
	require.Equal(t, "widget", e.Key().Display())
	require.Equal(t, "http://mirror/widget", e.Value().URL())
}

func TestLoad_GithubPackage(t *testing.T) {
	path := writeTemp(t, "packages.json", `{
		"packages": [
			{"owner": "Moka-Reads", "repo": "QuickFetch", "tag": "v0.5.0", "asset": "quickfetch-linux-x86_64"}
		]
	}`)

	doc, err := Load(path, Filter{})
	require.NoError(t, err)
	require.Len(t, doc.Packages, 1)
	require.True(t, doc.Packages[0].IsGithub())

	e := doc.Packages[0].ToEntry()
	require.Equal(t, "https://github.com/Moka-Reads/QuickFetch/releases/download/v0.5.0/quickfetch-linux-x86_64", e.Value().URL())
}

func TestLoad_GithubPackage_TagNotSemver(t *testing.T) {
	path := writeTemp(t, "packages.json", `{
		"packages": [
			{"owner": "o", "repo": "r", "tag": "release-candidate-7", "asset": "a"}
		]
	}`)

	_, err := Load(path, Filter{})
	require.NoError(t, err, "a non-semver tag must not fail validation for a GithubEntry package")
}

func TestLoad_RejectsMissingPackagesField(t *testing.T) {
	path := writeTemp(t, "packages.json", `{}`)

	_, err := Load(path, Filter{})
	require.Error(t, err)
}

func TestLoad_AllowsEmptyPackagesList(t *testing.T) {
	path := writeTemp(t, "packages.json", `{"packages": []}`)

	doc, err := Load(path, Filter{})
	require.NoError(t, err)
	require.Empty(t, doc.Packages)
}
