package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpitalk/rpitalk-gadget/pkg/config"
	"github.com/rpitalk/rpitalk-gadget/pkg/configfs"
	"github.com/rpitalk/rpitalk-gadget/pkg/gadget"
	"github.com/rpitalk/rpitalk-gadget/pkg/kmod"
	"github.com/rpitalk/rpitalk-gadget/pkg/provision"
	"github.com/rpitalk/rpitalk-gadget/pkg/udc"
)

const (
	backendConfigfs = "configfs"
	backendSim      = "sim"
)

var (
	configPath   string
	configfsRoot string
	udcClassDir  string
	gadgetName   string
	preferredUDC string
	backend      string
	mountTable   string
	sysModuleDir string
	jsonOutput   bool

	// Simulator flags
	simUDCs     []string
	simNoModule bool
	simDump     bool
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the serial gadget and bind it to a device controller",
	Long: `Read the gadget configuration, make sure libcomposite is loaded and configfs is
mounted, write the gadget descriptors, attach the ACM function and bind the
gadget to a USB device controller.

Hosts without gadget support (no libcomposite, no controller) are skipped and
exit 0. A missing configuration source or a failed configfs mount exits 1.

The sim backend runs the same sequence against an in-memory configfs tree.`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "gadget configuration source")
	provisionCmd.Flags().StringVar(&preferredUDC, "udc", "", "controller to bind when present (default: first available)")
	provisionCmd.Flags().StringVar(&backend, "backend", backendConfigfs, "backend: configfs or sim")
	provisionCmd.Flags().StringVar(&mountTable, "mount-table", configfs.DefaultMountTable, "mount table consulted before mounting configfs")
	provisionCmd.Flags().StringVar(&sysModuleDir, "sys-module", kmod.DefaultSysModuleDir, "directory listing loaded kernel modules")
	provisionCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	provisionCmd.Flags().StringSliceVar(&simUDCs, "sim-udcs", nil, "controllers reported by the sim backend")
	provisionCmd.Flags().BoolVar(&simNoModule, "sim-no-module", false, "sim backend: libcomposite is unavailable")
	provisionCmd.Flags().BoolVar(&simDump, "sim-dump", false, "sim backend: print the resulting configfs tree")
	addTreeFlags(provisionCmd)
	rootCmd.AddCommand(provisionCmd)
}

// addTreeFlags registers the flags locating the gadget in configfs.
func addTreeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configfsRoot, "configfs", configfs.DefaultRoot, "configfs mount point")
	cmd.Flags().StringVar(&udcClassDir, "udc-class", udc.DefaultClassDir, "sysfs class directory of device controllers")
	cmd.Flags().StringVar(&gadgetName, "gadget-name", gadget.DefaultName, "gadget directory name under usb_gadget")
}

func runProvision(cmd *cobra.Command, args []string) error {
	orch := &provision.Orchestrator{
		ConfigPath:   configPath,
		MountPoint:   configfsRoot,
		Layout:       gadget.NewLayout(gadgetName),
		PreferredUDC: preferredUDC,
	}

	var sim *configfs.SimTree
	switch backend {
	case backendConfigfs:
		orch.Modules = &kmod.Modprobe{SysModuleDir: sysModuleDir}
		orch.Mounter = &configfs.SystemMounter{MountTable: mountTable}
		orch.Tree = configfs.NewDirTree(configfsRoot)
		orch.Controllers = &udc.SysfsLister{Dir: udcClassDir}
	case backendSim:
		loader := &kmod.SimLoader{}
		if simNoModule {
			loader.Missing = []string{kmod.Composite}
		}
		sim = configfs.NewSimTree()
		orch.Modules = loader
		orch.Mounter = &configfs.SimMounter{}
		orch.Tree = sim
		orch.Controllers = udc.StaticLister(simUDCs)
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", backend, backendConfigfs, backendSim)
	}

	result := orch.Run(cmd.Context())

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(orch.Layout.Name, &result)
	}
	if sim != nil && simDump {
		dumpTree(sim)
	}

	if result.ExitCode() != 0 {
		return fmt.Errorf("provision %s: %w", result.State, result.Err)
	}
	return nil
}

func printResult(name string, r *provision.Result) {
	fmt.Printf("Gadget %s: %s (%s)\n", name, r.Outcome, r.State)

	trail := make([]string, len(r.Trail))
	for i, s := range r.Trail {
		trail[i] = s.String()
	}
	fmt.Printf("  Steps:      %s\n", strings.Join(trail, " -> "))
	if r.Mounted {
		fmt.Println("  configfs:   mounted by this run")
	}
	if r.Previous != "" {
		fmt.Printf("  Unbound:    %s\n", r.Previous)
	}
	if r.Controller != "" {
		fmt.Printf("  Controller: %s\n", r.Controller)
	}
	if r.Reason != "" {
		fmt.Printf("  Reason:     %s\n", r.Reason)
	}
	if r.Err != nil {
		fmt.Printf("  Error:      %v\n", r.Err)
	}
}

func dumpTree(sim *configfs.SimTree) {
	snap := sim.Snapshot()
	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fmt.Println("configfs tree:")
	for _, p := range paths {
		switch kind, _ := sim.Kind(p); kind {
		case configfs.KindDir:
			fmt.Printf("  %s/\n", p)
		case configfs.KindLink:
			fmt.Printf("  %s %s\n", p, snap[p])
		default:
			fmt.Printf("  %s = %s\n", p, snap[p])
		}
	}
}
