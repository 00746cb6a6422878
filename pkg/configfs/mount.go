package configfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSType is the filesystem type name reported in the mount table.
const FSType = "configfs"

// DefaultMountTable lists the mounts visible to the calling process.
const DefaultMountTable = "/proc/self/mounts"

// ErrMount reports that configfs could not be made available.
var ErrMount = errors.New("configfs: mount failed")

// Mounter checks for and performs the configfs mount.
type Mounter interface {
	IsMounted(path string) (bool, error)
	Mount(path string) error
}

// Ensure mounts configfs at path unless it is already mounted there. It
// reports whether a mount was performed. Every failure wraps ErrMount.
func Ensure(m Mounter, path string) (bool, error) {
	mounted, err := m.IsMounted(path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMount, err)
	}
	if mounted {
		return false, nil
	}
	if err := m.Mount(path); err != nil {
		if errors.Is(err, ErrMount) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", ErrMount, err)
	}
	return true, nil
}

// SystemMounter mounts configfs through mount(2) and consults the kernel mount
// table to keep the operation idempotent.
type SystemMounter struct {
	// MountTable overrides DefaultMountTable.
	MountTable string
}

// IsMounted reports whether a configfs instance is mounted at path.
func (m *SystemMounter) IsMounted(path string) (bool, error) {
	table := m.MountTable
	if table == "" {
		table = DefaultMountTable
	}
	f, err := os.Open(table)
	if err != nil {
		return false, fmt.Errorf("read mount table: %w", err)
	}
	defer f.Close()

	return mountedIn(f, path)
}

// mountedIn scans a mount table in fstab format.
func mountedIn(r io.Reader, path string) (bool, error) {
	want := filepath.Clean(path)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[2] == FSType && filepath.Clean(unescapeMountPath(fields[1])) == want {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("scan mount table: %w", err)
	}
	return false, nil
}

// unescapeMountPath decodes the octal escapes the kernel uses for whitespace
// in mount points (\040 for space and so on).
func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// SimMounter is an in-memory Mounter for tests.
type SimMounter struct {
	Mounted bool
	// Err, when set, is returned by Mount.
	Err error

	mounts int
}

func (m *SimMounter) IsMounted(string) (bool, error) {
	return m.Mounted, nil
}

func (m *SimMounter) Mount(string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mounts++
	m.Mounted = true
	return nil
}

// Mounts reports how many mounts were performed.
func (m *SimMounter) Mounts() int {
	return m.mounts
}
