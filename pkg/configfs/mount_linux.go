//go:build linux

package configfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mount mounts configfs at path, creating the mount point if needed.
func (m *SystemMounter) Mount(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: create mount point %s: %w", ErrMount, path, err)
	}
	if err := unix.Mount("none", path, FSType, 0, ""); err != nil {
		return fmt.Errorf("%w: mount -t %s none %s: %w", ErrMount, FSType, path, err)
	}
	return nil
}
