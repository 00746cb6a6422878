package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/rpitalk/rpitalk-gadget/pkg/config"
	"github.com/rpitalk/rpitalk-gadget/pkg/usbhost"
)

var (
	probeVID     string
	probePID     string
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Look for the gadget from the USB host side",
	Long: `Run on the computer the Raspberry Pi is plugged into. Enumerates the host's
USB devices with libusb and reports whether the gadget's VID:PID is present and
exposes a CDC-ACM interface.

The identifiers default to those in the configuration source when it exists,
otherwise to the built-in defaults.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "gadget configuration source")
	probeCmd.Flags().StringVar(&probeVID, "vid", "", "vendor ID to look for")
	probeCmd.Flags().StringVar(&probePID, "pid", "", "product ID to look for")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "enumeration timeout")
	rootCmd.AddCommand(probeCmd)
}

// probeMatcher resolves the identifiers to look for.
func probeMatcher(ctx context.Context) (usbhost.Matcher, error) {
	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, config.ErrSourceMissing):
		logr.FromContextOrDiscard(ctx).V(1).Info("Using default identifiers", "source", configPath)
		cfg = config.Default()
	case err != nil:
		return usbhost.Matcher{}, err
	}

	m := usbhost.Matcher{VendorID: cfg.VendorID, ProductID: cfg.ProductID}
	if probeVID != "" {
		if m.VendorID, err = config.ParseID(probeVID); err != nil {
			return m, fmt.Errorf("--vid: %w", err)
		}
	}
	if probePID != "" {
		if m.ProductID, err = config.ParseID(probePID); err != nil {
			return m, fmt.Errorf("--pid: %w", err)
		}
	}
	return m, nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	m, err := probeMatcher(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	devices, err := usbhost.Find(ctx, m)
	if err != nil {
		return fmt.Errorf("enumerate usb devices: %w", err)
	}

	if len(devices) == 0 {
		return fmt.Errorf("no device with VID:PID %04X:%04X", m.VendorID, m.ProductID)
	}

	fmt.Printf("Found %d device(s) with VID:PID %04X:%04X:\n", len(devices), m.VendorID, m.ProductID)
	for _, d := range devices {
		acm := "no ACM interface"
		if d.HasACM {
			acm = "ACM"
		}
		fmt.Printf("  - %s [%s]", d.Label(), acm)
		if d.Serial != "" {
			fmt.Printf(" serial %s", d.Serial)
		}
		fmt.Println()
	}
	return nil
}
