package gadget

import (
	"errors"
	"fmt"

	"github.com/rpitalk/rpitalk-gadget/pkg/configfs"
)

// Status is a read-back of a gadget as it currently exists in configfs.
type Status struct {
	Name          string   `json:"name"`
	Present       bool     `json:"present"`
	VendorID      string   `json:"id_vendor,omitempty"`
	ProductID     string   `json:"id_product,omitempty"`
	Serial        string   `json:"serial,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Product       string   `json:"product,omitempty"`
	Configuration string   `json:"configuration,omitempty"`
	Functions     []string `json:"functions,omitempty"` // entries linked into c.1
	UDC           string   `json:"udc,omitempty"`
}

// Bound reports whether the gadget is attached to a controller.
func (s *Status) Bound() bool {
	return s.UDC != ""
}

// Status reads the gadget back. A gadget that does not exist yields a Status
// with Present false and no error.
func (b *Builder) Status() (*Status, error) {
	st := &Status{Name: b.layout.Name}

	present, err := b.Exists()
	if err != nil {
		return nil, err
	}
	if !present {
		return st, nil
	}
	st.Present = true

	reads := []struct {
		dst  *string
		path string
	}{
		{&st.VendorID, b.layout.Path("idVendor")},
		{&st.ProductID, b.layout.Path("idProduct")},
		{&st.Serial, b.layout.Path("strings", LangEnglishUS, "serialnumber")},
		{&st.Manufacturer, b.layout.Path("strings", LangEnglishUS, "manufacturer")},
		{&st.Product, b.layout.Path("strings", LangEnglishUS, "product")},
		{&st.Configuration, b.layout.Path("configs", ConfigName, "strings", LangEnglishUS, "configuration")},
		{&st.UDC, b.layout.UDC()},
	}
	for _, r := range reads {
		v, err := b.tree.ReadAttr(r.path)
		if err != nil {
			if errors.Is(err, configfs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("gadget: status: %w", err)
		}
		*r.dst = v
	}

	functions, err := b.linkedFunctions()
	if err != nil {
		return nil, err
	}
	st.Functions = functions
	return st, nil
}

// linkedFunctions lists the function links inside the configuration,
// skipping the attributes and strings directory configfs keeps alongside them.
func (b *Builder) linkedFunctions() ([]string, error) {
	entries, err := b.tree.List(b.layout.Config())
	if err != nil {
		if errors.Is(err, configfs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("gadget: status: %w", err)
	}

	var functions []string
	for _, name := range entries {
		switch name {
		case "strings", "MaxPower", "bmAttributes":
			continue
		}
		fnDir := b.layout.Path("functions", name)
		if ok, err := b.tree.Exists(fnDir); err == nil && ok {
			functions = append(functions, name)
		}
	}
	return functions, nil
}
