//go:build !linux

package configfs

import (
	"fmt"
	"runtime"
)

// Mount always fails: configfs only exists on Linux.
func (m *SystemMounter) Mount(path string) error {
	return fmt.Errorf("%w: configfs is not available on %s", ErrMount, runtime.GOOS)
}
