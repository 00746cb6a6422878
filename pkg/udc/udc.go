package udc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// DefaultClassDir lists the USB device controllers registered with the kernel.
const DefaultClassDir = "/sys/class/udc"

// ErrNoController reports that no device controller can be bound right now,
// for example because the OTG port is in host mode or the board has none.
var ErrNoController = errors.New("udc: no device controller available")

// Lister enumerates USB device controllers.
type Lister interface {
	Controllers() ([]string, error)
}

// SysfsLister enumerates controllers from the udc device class in sysfs.
type SysfsLister struct {
	// Dir overrides DefaultClassDir.
	Dir string
}

// Controllers returns the registered controller names, sorted. A missing
// class directory means the kernel has no UDC driver and yields no entries.
func (l *SysfsLister) Controllers() ([]string, error) {
	dir := l.Dir
	if dir == "" {
		dir = DefaultClassDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("udc: list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// StaticLister returns a fixed controller list.
type StaticLister []string

func (s StaticLister) Controllers() ([]string, error) {
	return append([]string(nil), s...), nil
}

// Select picks the controller to bind: preferred when it is present,
// otherwise the first one enumerated.
func Select(l Lister, preferred string) (string, error) {
	names, err := l.Controllers()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoController
	}
	if preferred != "" {
		for _, name := range names {
			if name == preferred {
				return name, nil
			}
		}
	}
	return names[0], nil
}
