package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMagic(m uint32) magicFunc {
	return func(string) (uint32, error) { return m, nil }
}

func TestCheckLocalFS(t *testing.T) {
	t.Parallel()

	const ext4, tmpfs = 0xEF53, 0x01021994

	cases := []struct {
		name  string
		magic uint32
		fs    string
	}{
		{name: "ext4", magic: ext4},
		{name: "tmpfs", magic: tmpfs},
		{name: "nfs", magic: 0x6969, fs: "nfs"},
		{name: "cifs", magic: 0xFF534D42, fs: "cifs"},
		{name: "smb2", magic: 0xFE534D42, fs: "smb2"},
		{name: "9p", magic: 0x01021997, fs: "9p"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dbPath := filepath.Join(t.TempDir(), "hwcd.db")
			err := checkLocalFS(dbPath, fixedMagic(tc.magic))
			if tc.fs == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrNetworkFS)
			assert.Contains(t, err.Error(), tc.fs)
			assert.Contains(t, err.Error(), "state.path")
		})
	}
}

func TestCheckLocalFSWalksUpToExistingDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "var", "lib", "hwcd", "hwcd.db")

	var inspected string
	err := checkLocalFS(dbPath, func(dir string) (uint32, error) {
		inspected = dir
		return 0xEF53, nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected)
}

func TestCheckLocalFSPassesStatfsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("statfs failed")
	err := checkLocalFS(filepath.Join(t.TempDir(), "hwcd.db"), func(string) (uint32, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestStatfsMagicOnTempDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m, err := statfsMagic(dir)
	require.NoError(t, err)
	_, network := networkMagic[m]
	assert.False(t, network, "temp dir reported as network filesystem 0x%x", m)

	_, err = statfsMagic(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
