// Package serial waits for the gadget's ACM tty to appear on the device side
// and prepares it for the emulator's byte protocol.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultDevice is the tty the kernel creates for acm.usb0.
	DefaultDevice = "/dev/ttyGS0"
	// DefaultPollInterval matches the emulator's one second retry.
	DefaultPollInterval = time.Second
)

// ErrNotTerminal is returned when the opened device is not a tty.
var ErrNotTerminal = errors.New("serial: not a terminal")

// Wait blocks until path exists or ctx is done.
func Wait(ctx context.Context, path string, interval time.Duration) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("serial")
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("serial: stat %s: %w", path, err)
		}
		logger.Info("Waiting for USB device", "device", path)

		select {
		case <-ctx.Done():
			return fmt.Errorf("serial: waiting for %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Open opens path without making it the controlling terminal and switches it
// to raw mode.
func Open(path string) (*os.File, error) {
	f, err := openNoCTTY(path)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}
	if err := MakeRaw(int(f.Fd())); err != nil {
		f.Close()
		return nil, fmt.Errorf("serial: configure %s: %w", path, err)
	}
	return f, nil
}
