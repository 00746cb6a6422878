//go:build !linux

package serial

import (
	"fmt"
	"os"
	"runtime"
)

func openNoCTTY(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

// MakeRaw is only implemented for Linux, where the gadget tty lives.
func MakeRaw(fd int) error {
	return fmt.Errorf("serial: raw mode unsupported on %s", runtime.GOOS)
}
