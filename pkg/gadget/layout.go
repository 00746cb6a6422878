package gadget

import (
	"fmt"
	"path"

	"github.com/rpitalk/rpitalk-gadget/pkg/config"
)

const (
	// DefaultName is the gadget directory created under usb_gadget.
	DefaultName = "rpitalk"

	// GadgetsDir is the libcomposite subsystem directory in configfs.
	GadgetsDir = "usb_gadget"

	// LangEnglishUS is the USB language ID string descriptors are written under.
	LangEnglishUS = "0x409"

	// ConfigName is the single configuration the gadget exposes.
	ConfigName = "c.1"

	// FunctionName is the CDC-ACM serial function instance. The kernel
	// exposes it to userspace as /dev/ttyGS0.
	FunctionName = "acm.usb0"

	// AttrUDC holds the name of the controller the gadget is bound to.
	AttrUDC = "UDC"
)

// Fixed descriptor values not exposed through the configuration source.
const (
	bcdDevice = "0x0100"
	bcdUSB    = "0x0200"
	maxPower  = "250" // mA
)

// Layout locates one gadget inside a configfs tree.
type Layout struct {
	Name string
}

// NewLayout returns the layout for the named gadget, or DefaultName.
func NewLayout(name string) Layout {
	if name == "" {
		name = DefaultName
	}
	return Layout{Name: name}
}

// Root is the gadget directory relative to the configfs root.
func (l Layout) Root() string {
	return path.Join(GadgetsDir, l.Name)
}

// Path joins elem onto the gadget directory.
func (l Layout) Path(elem ...string) string {
	return path.Join(append([]string{l.Root()}, elem...)...)
}

// UDC is the binding attribute.
func (l Layout) UDC() string {
	return l.Path(AttrUDC)
}

// Function is the ACM function directory.
func (l Layout) Function() string {
	return l.Path("functions", FunctionName)
}

// Config is the configuration directory.
func (l Layout) Config() string {
	return l.Path("configs", ConfigName)
}

// FunctionLink is the link attaching the ACM function to the configuration.
func (l Layout) FunctionLink() string {
	return l.Path("configs", ConfigName, FunctionName)
}

type attribute struct {
	name  string
	value string
}

// configItem is one directory of the gadget with the attributes written into
// it, in the order listed.
type configItem struct {
	dir   string
	link  string // created pointing at dir once dir exists
	attrs []attribute
}

// descriptorItems lists the gadget's directories parents first, so every
// item's parent exists when it is applied.
func descriptorItems(l Layout, cfg *config.GadgetConfig) []configItem {
	return []configItem{
		{
			dir: l.Root(),
			attrs: []attribute{
				{"idVendor", formatID(cfg.VendorID)},
				{"idProduct", formatID(cfg.ProductID)},
				{"bcdDevice", bcdDevice},
				{"bcdUSB", bcdUSB},
			},
		},
		{
			dir: l.Path("strings", LangEnglishUS),
			attrs: []attribute{
				{"serialnumber", cfg.Serial},
				{"manufacturer", cfg.Manufacturer},
				{"product", cfg.Product},
			},
		},
		{
			dir: l.Config(),
			attrs: []attribute{
				{"MaxPower", maxPower},
			},
		},
		{
			dir: l.Path("configs", ConfigName, "strings", LangEnglishUS),
			attrs: []attribute{
				{"configuration", cfg.ConfigurationName},
			},
		},
	}
}

// Serial (CDC-ACM) function
func acmFunctionItem(l Layout) configItem {
	return configItem{
		dir:  l.Function(),
		link: l.FunctionLink(),
	}
}

func formatID(id uint16) string {
	return fmt.Sprintf("0x%04x", id)
}
