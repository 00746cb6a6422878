package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpitalk/rpitalk-gadget/pkg/configfs"
	"github.com/rpitalk/rpitalk-gadget/pkg/gadget"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gadget as it exists in configfs",
	Long: `Read the gadget back from configfs: identifiers, strings, linked functions
and the controller it is bound to. Nothing is modified.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the status as JSON")
	addTreeFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	builder := gadget.NewBuilder(configfs.NewDirTree(configfsRoot), gadget.NewLayout(gadgetName))
	st, err := builder.Status()
	if err != nil {
		return fmt.Errorf("read gadget: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	if !st.Present {
		fmt.Printf("Gadget %s is not present under %s\n", st.Name, configfsRoot)
		return nil
	}

	fmt.Printf("Gadget %s\n", st.Name)
	fmt.Printf("  VID:PID:       %s:%s\n", st.VendorID, st.ProductID)
	fmt.Printf("  Manufacturer:  %s\n", st.Manufacturer)
	fmt.Printf("  Product:       %s\n", st.Product)
	fmt.Printf("  Serial:        %s\n", st.Serial)
	fmt.Printf("  Configuration: %s\n", st.Configuration)
	if len(st.Functions) == 0 {
		fmt.Println("  Functions:     none")
	} else {
		fmt.Printf("  Functions:     %s\n", strings.Join(st.Functions, ", "))
	}
	if st.Bound() {
		fmt.Printf("  Bound to:      %s\n", st.UDC)
	} else {
		fmt.Println("  Bound to:      (unbound)")
	}
	return nil
}
