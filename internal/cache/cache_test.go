package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndRetrieve(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	digest, err := s.Store(strings.NewReader("hello world"), "")
	require.NoError(t, err)
	assert.True(t, s.Has(digest))

	path, err := s.Path(digest)
	require.NoError(t, err)
	assert.Contains(t, path, digest[:2])
	assert.Contains(t, path, digest[2:4])
}

func TestStoreRejectsDigestMismatch(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = s.Store(strings.NewReader("hello world"), "0000000000000000000000000000000000000000000000000000000000000000")
	assert.Error(t, err)
}

func TestSweepRespectsKeep(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	digest, err := s.Store(strings.NewReader("keep me"), "")
	require.NoError(t, err)

	removed, err := s.Sweep(GCPolicy{OlderThan: -time.Hour, Keep: map[string]bool{digest: true}})
	require.NoError(t, err)
	assert.NotContains(t, removed, digest)
	assert.True(t, s.Has(digest))
}

func TestSweepRemovesOldEntries(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	digest, err := s.Store(strings.NewReader("stale"), "")
	require.NoError(t, err)

	removed, err := s.Sweep(GCPolicy{OlderThan: -time.Hour})
	require.NoError(t, err)
	assert.Contains(t, removed, digest)
	assert.False(t, s.Has(digest))
}
