package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpitalk/rpitalk-gadget/pkg/serial"
)

var (
	serialDevice   string
	serialTimeout  time.Duration
	serialInterval time.Duration
	serialRaw      bool
)

var waitSerialCmd = &cobra.Command{
	Use:   "wait-serial",
	Short: "Wait for the gadget tty and switch it to raw mode",
	Long: `Block until the ACM tty created by the gadget exists, then configure it as a raw
9600 8N1 line with blocking single byte reads and no software flow control.
Intended to run before the emulator opens the port.`,
	Args: cobra.NoArgs,
	RunE: runWaitSerial,
}

func init() {
	waitSerialCmd.Flags().StringVar(&serialDevice, "device", serial.DefaultDevice, "serial device node")
	waitSerialCmd.Flags().DurationVar(&serialTimeout, "timeout", 0, "give up after this long (0 waits forever)")
	waitSerialCmd.Flags().DurationVar(&serialInterval, "interval", serial.DefaultPollInterval, "poll interval")
	waitSerialCmd.Flags().BoolVar(&serialRaw, "raw", true, "configure raw mode once the device appears")
	rootCmd.AddCommand(waitSerialCmd)
}

func runWaitSerial(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if serialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, serialTimeout)
		defer cancel()
	}

	if err := serial.Wait(ctx, serialDevice, serialInterval); err != nil {
		return err
	}

	if serialRaw {
		f, err := serial.Open(serialDevice)
		if err != nil {
			return err
		}
		f.Close()
	}

	fmt.Printf("Serial device %s ready\n", serialDevice)
	return nil
}
