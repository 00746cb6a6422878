package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpitalk/rpitalk-gadget/pkg/udc"
)

var controllersCmd = &cobra.Command{
	Use:   "controllers",
	Short: "List USB device controllers",
	Long: `List the USB device controllers (UDCs) registered with the kernel. The gadget
binds to one of these; an empty list means the board cannot act as a USB device.`,
	Args: cobra.NoArgs,
	RunE: runControllers,
}

func init() {
	controllersCmd.Flags().StringVar(&udcClassDir, "udc-class", udc.DefaultClassDir, "sysfs class directory of device controllers")
	rootCmd.AddCommand(controllersCmd)
}

func runControllers(cmd *cobra.Command, args []string) error {
	names, err := (&udc.SysfsLister{Dir: udcClassDir}).Controllers()
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Println("No device controllers found.")
		return nil
	}

	fmt.Println("Device controllers:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
