// Package usbhost looks at the gadget from the other end of the cable: it
// enumerates the USB devices visible to a host and picks out the ones that
// match a vendor/product pair, so an operator can confirm the emulator
// enumerated after provisioning.
package usbhost

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// CDC class codes used to recognise the ACM function.
const (
	ClassComm    = 0x02
	ClassCDCData = 0x0a
)

// Device describes one matching device seen by the host.
type Device struct {
	Bus          int
	Address      int
	Port         int
	VendorID     uint16
	ProductID    uint16
	DeviceBCD    string
	Manufacturer string
	Product      string
	Serial       string
	// HasACM is set when a configuration exposes a CDC communications
	// interface.
	HasACM bool
}

// Label returns a one-line description of the device.
func (d Device) Label() string {
	name := d.Product
	if name == "" {
		name = "unknown product"
	}
	return fmt.Sprintf("%s (%04X:%04X) on bus %03d device %03d", name, d.VendorID, d.ProductID, d.Bus, d.Address)
}

// Matcher selects devices by identifier.
type Matcher struct {
	VendorID  uint16
	ProductID uint16
}

// Match reports whether desc carries the wanted identifiers.
func (m Matcher) Match(desc *gousb.DeviceDesc) bool {
	return uint16(desc.Vendor) == m.VendorID && uint16(desc.Product) == m.ProductID
}

// describe converts a descriptor into a Device without opening it.
func describe(desc *gousb.DeviceDesc) Device {
	d := Device{
		Bus:       desc.Bus,
		Address:   desc.Address,
		Port:      desc.Port,
		VendorID:  uint16(desc.Vendor),
		ProductID: uint16(desc.Product),
		DeviceBCD: desc.Device.String(),
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.Class(ClassComm) {
					d.HasACM = true
				}
			}
		}
	}
	return d
}

// Find enumerates the host's USB devices and returns those accepted by m.
// String descriptors are read when the device can be opened; permission
// problems leave them empty rather than failing the search.
func Find(ctx context.Context, m Matcher) ([]Device, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var found []Device
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if !m.Match(desc) {
			return false
		}
		found = append(found, describe(desc))
		return true
	})
	defer func() {
		for _, dev := range devs {
			dev.Close()
		}
	}()
	if err != nil && err != gousb.ErrorAccess {
		return found, err
	}
	if err := ctx.Err(); err != nil {
		return found, err
	}

	// Devices that could not be opened are missing from devs, so pair by
	// bus address rather than by position.
	for _, dev := range devs {
		for i := range found {
			if found[i].Bus != dev.Desc.Bus || found[i].Address != dev.Desc.Address {
				continue
			}
			if s, err := dev.Manufacturer(); err == nil {
				found[i].Manufacturer = s
			}
			if s, err := dev.Product(); err == nil {
				found[i].Product = s
			}
			if s, err := dev.SerialNumber(); err == nil {
				found[i].Serial = s
			}
		}
	}
	return found, nil
}
