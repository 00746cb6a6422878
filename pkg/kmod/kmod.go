// Package kmod makes sure a kernel module is loaded before anything depends
// on it.
//
// A module that cannot be loaded is reported as ErrUnavailable. Callers treat
// that as "feature not present on this host" rather than as a failure, since
// the same boot image runs on boards with and without USB device controllers.
package kmod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Composite is the module providing the configfs USB gadget API.
const Composite = "libcomposite"

// DefaultSysModuleDir is where the kernel lists loaded and built-in modules.
const DefaultSysModuleDir = "/sys/module"

// ErrUnavailable signals that the module is not available on this host.
var ErrUnavailable = errors.New("kmod: kernel module unavailable")

// Loader loads kernel modules.
type Loader interface {
	Load(ctx context.Context, name string) error
}

// Modprobe loads modules with modprobe(8), skipping the call when the module
// is already present under /sys/module.
type Modprobe struct {
	// SysModuleDir overrides DefaultSysModuleDir.
	SysModuleDir string
	// Command overrides the modprobe executable.
	Command string
}

// Loaded reports whether the module is already present.
func (m *Modprobe) Loaded(name string) bool {
	dir := m.SysModuleDir
	if dir == "" {
		dir = DefaultSysModuleDir
	}
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func (m *Modprobe) Load(ctx context.Context, name string) error {
	if m.Loaded(name) {
		return nil
	}

	command := m.Command
	if command == "" {
		command = "modprobe"
	}
	out, err := exec.CommandContext(ctx, command, name).CombinedOutput()
	if ctx.Err() != nil {
		// Cancellation is not a statement about the host's capabilities.
		return ctx.Err()
	}
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
		}
		return fmt.Errorf("%w: %s: %w: %s", ErrUnavailable, name, err, msg)
	}
	return nil
}

// SimLoader is an in-memory Loader for tests.
type SimLoader struct {
	// Missing lists modules that fail to load.
	Missing []string

	loaded []string
}

func (s *SimLoader) Load(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range s.Missing {
		if m == name {
			return fmt.Errorf("%w: %s: module not found", ErrUnavailable, name)
		}
	}
	s.loaded = append(s.loaded, name)
	return nil
}

// Loaded returns the modules loaded so far, in call order.
func (s *SimLoader) Loaded() []string {
	return append([]string(nil), s.loaded...)
}
