package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharedLocksCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.chkpnt")

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.LockSharedNonBlock())
	require.NoError(t, b.LockSharedNonBlock())
}

func TestExclusiveExcludesShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.chkpnt")

	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.LockExclusiveNonBlock())

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	err = reader.LockSharedNonBlock()
	require.ErrorIs(t, err, ErrLockBusy)
}

func TestUnlockReleasesForOthers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.chkpnt")

	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.LockExclusiveNonBlock())
	require.NoError(t, writer.Unlock())

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()
	require.NoError(t, reader.LockSharedNonBlock())
}
