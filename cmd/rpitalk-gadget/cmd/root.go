package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rpitalk/rpitalk-gadget/internal/logging"
)

var (
	// Global flags
	verbosity   int
	development bool
)

var rootCmd = &cobra.Command{
	Use:   "rpitalk-gadget",
	Short: "USB serial gadget provisioning for the RPITalk synthesizer emulator",
	Long: `Provision the Raspberry Pi as a USB CDC-ACM gadget through configfs so a host
can talk to the DECtalk emulator over a serial line, and inspect the result.

Examples:
  rpitalk-gadget provision                              # Provision from /etc/rpitalk/gadget.conf
  rpitalk-gadget provision --backend sim --sim-udcs ctrlA --sim-dump
  rpitalk-gadget status --json                          # Read the gadget back
  rpitalk-gadget wait-serial --timeout 30s              # Wait for /dev/ttyGS0`,
	Version:       "0.3.0",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := logging.New(verbosity, development)
		cmd.SetContext(logging.IntoContext(cmd.Context(), logger))
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&development, "dev-log", false, "human readable development log output")
}
