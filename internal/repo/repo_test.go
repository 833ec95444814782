package repo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAddListRemove(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "overlays.json"))
	require.NoError(t, err)

	require.NoError(t, m.Add(Repository{Name: "gentoo", Transport: TransportGit, Remote: "https://example.invalid/gentoo.git", Priority: 0}))
	require.NoError(t, m.Add(Repository{Name: "my-overlay", Transport: TransportGit, Remote: "https://example.invalid/overlay.git", Priority: 10}))

	err = m.Add(Repository{Name: "gentoo"})
	assert.Error(t, err, "duplicate name should be rejected")

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "my-overlay", list[0].Name, "higher priority sorts first")

	assert.Equal(t, 10, m.PriorityOf("my-overlay"))
	assert.Less(t, m.PriorityOf("unknown"), 0)

	require.NoError(t, m.Remove("gentoo"))
	assert.Len(t, m.List(), 1)
}

func TestManagerPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlays.json")

	m1, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m1.Add(Repository{Name: "gentoo", Transport: TransportGit, Remote: "x", Priority: 0}))

	m2, err := NewManager(path)
	require.NoError(t, err)
	assert.Len(t, m2.List(), 1)
}

func TestParseGentooRepositoriesXML(t *testing.T) {
	doc := []byte(`<?xml version="1.0"?>
<repositories>
  <repo quality="official">
    <name>gentoo</name>
    <owner><name>Gentoo</name></owner>
    <source type="git">https://example.invalid/gentoo.git</source>
    <source type="rsync">rsync://example.invalid/gentoo</source>
  </repo>
</repositories>`)
	overlays, err := ParseGentooRepositoriesXML(doc)
	require.NoError(t, err)
	require.Len(t, overlays, 1)
	assert.Equal(t, "gentoo", overlays[0].Name)
	assert.Equal(t, TransportGit, overlays[0].Transport, "git source should be preferred over rsync")
}

func TestParseJSONOverlayList(t *testing.T) {
	doc := []byte(`[{"name":"my-overlay","transport":"git","remote":"https://example.invalid/o.git","owner":"me","quality":"community"}]`)
	overlays, err := ParseJSONOverlayList(doc)
	require.NoError(t, err)
	require.Len(t, overlays, 1)
	assert.Equal(t, "my-overlay", overlays[0].Name)
}
