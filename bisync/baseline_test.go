package bisync_test

import (
	"os"
	"testing"

	"github.com/cjnaz/rclonesync-go/bisync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineWriteLoadRoundTrip(t *testing.T) {
	store := bisync.NewStore(t.TempDir(), "/path1", "/path2", false)
	l := listingOf(bisync.Entry{Path: "a.txt", Size: 5, MTime: 100})

	require.NoError(t, store.WriteBaseline(bisync.Path1, l))
	assert.True(t, store.HasBaseline(bisync.Path1))
	assert.False(t, store.HasBaseline(bisync.Path2))

	loaded, err := store.LoadBaseline(bisync.Path1)
	require.NoError(t, err)
	assert.Equal(t, l.Paths(), loaded.Paths())
}

func TestBaselineRenameToError(t *testing.T) {
	store := bisync.NewStore(t.TempDir(), "/path1", "/path2", false)
	l := bisync.NewListing()
	require.NoError(t, store.WriteBaseline(bisync.Path1, l))

	require.NoError(t, store.RenameToError(bisync.Path1))
	assert.False(t, bisync.NewStore(store.Workdir, "/path1", "/path2", false).HasBaseline(bisync.Path1))
	_, err := os.Stat(store.ErrorPath(bisync.Path1))
	assert.NoError(t, err)
}

func TestBaselineRenameToErrorMissingIsNotError(t *testing.T) {
	store := bisync.NewStore(t.TempDir(), "/path1", "/path2", false)
	assert.NoError(t, store.RenameToError(bisync.Path1))
}

func TestDryRunLeavesRealBaselineUntouched(t *testing.T) {
	workdir := t.TempDir()
	real := bisync.NewStore(workdir, "/path1", "/path2", false)
	original := listingOf(bisync.Entry{Path: "orig.txt", Size: 1, MTime: 1})
	require.NoError(t, real.WriteBaseline(bisync.Path1, original))

	dry := bisync.NewStore(workdir, "/path1", "/path2", true)
	require.NoError(t, dry.PrepareDryRun())
	require.True(t, dry.HasBaseline(bisync.Path1))

	updated := listingOf(bisync.Entry{Path: "new.txt", Size: 2, MTime: 2})
	require.NoError(t, dry.WriteBaseline(bisync.Path1, updated))

	reloaded, err := real.LoadBaseline(bisync.Path1)
	require.NoError(t, err)
	assert.Equal(t, []string{"orig.txt"}, reloaded.Paths())
}

func TestFingerprintSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	filtersFile := dir + "/filters.txt"
	require.NoError(t, os.WriteFile(filtersFile, []byte("+ a\n"), 0o644))

	_, ok, err := bisync.LoadFingerprint(filtersFile)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bisync.SaveFingerprint(filtersFile, "abc123"))
	fp, ok, err := bisync.LoadFingerprint(filtersFile)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", fp)
}
