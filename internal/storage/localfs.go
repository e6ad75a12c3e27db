package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrNetworkFS means the state database would sit on a network mount, where
// SQLite's file locks cannot be trusted.
var ErrNetworkFS = errors.New("state database on a network filesystem")

// networkMagic maps statfs f_type values to the filesystem they identify.
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
	0x00C36400: "ceph",
	0x5346414F: "afs",
	0x01021997: "9p",
}

type magicFunc func(dir string) (uint32, error)

func statfsMagic(dir string) (uint32, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return uint32(st.Type), nil
}

// checkLocalFS inspects the closest existing ancestor of dbPath, since the
// database and its directory may not exist yet.
func checkLocalFS(dbPath string, magic magicFunc) error {
	dir, err := existingAncestor(dbPath)
	if err != nil {
		return err
	}
	m, err := magic(dir)
	if err != nil {
		return err
	}
	if name, ok := networkMagic[m]; ok {
		return fmt.Errorf("%w: %s is on %s; point state.path at local storage", ErrNetworkFS, dbPath, name)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for {
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			return dir, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing directory above %s", path)
		}
		dir = parent
	}
}
