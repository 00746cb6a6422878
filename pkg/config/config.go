package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// DefaultPath is where the boot-time service looks for the gadget source.
const DefaultPath = "/etc/rpitalk/gadget.conf"

// Recognised keys.
const (
	KeyEnableGadget      = "ENABLE_GADGET"
	KeyVendorID          = "VENDOR_ID"
	KeyProductID         = "PRODUCT_ID"
	KeySerial            = "SERIAL"
	KeyManufacturer      = "MANUFACTURER"
	KeyProduct           = "PRODUCT"
	KeyConfigurationName = "CONFIGURATION_NAME"
)

// Defaults applied for keys that are absent or assigned an empty value.
const (
	DefaultVendorID          uint16 = 0x1d6b
	DefaultProductID         uint16 = 0x0104
	DefaultSerial                   = "rpitalk-001"
	DefaultManufacturer             = "RPITalk Development Team"
	DefaultProduct                  = "RPITalk Synth Emulator"
	DefaultConfigurationName        = "RPITalk Config"
)

// ErrSourceMissing is returned when the configuration source does not exist.
// It is the only unrecoverable precondition of a provisioning run.
var ErrSourceMissing = errors.New("config: configuration source missing")

// GadgetConfig is the provisioning intent loaded once per run.
type GadgetConfig struct {
	Enabled           bool   `json:"enabled"`
	VendorID          uint16 `json:"vendor_id"`
	ProductID         uint16 `json:"product_id"`
	Serial            string `json:"serial"`
	Manufacturer      string `json:"manufacturer"`
	Product           string `json:"product"`
	ConfigurationName string `json:"configuration_name"`

	// Ignored lists keys present in the source that are not recognised.
	Ignored []string `json:"-"`
}

// Default returns a GadgetConfig with every field at its documented default.
func Default() *GadgetConfig {
	return &GadgetConfig{
		Enabled:           true,
		VendorID:          DefaultVendorID,
		ProductID:         DefaultProductID,
		Serial:            DefaultSerial,
		Manufacturer:      DefaultManufacturer,
		Product:           DefaultProduct,
		ConfigurationName: DefaultConfigurationName,
	}
}

type field struct {
	key   string
	apply func(cfg *GadgetConfig, value string) error
}

var fields = []field{
	{KeyEnableGadget, func(cfg *GadgetConfig, v string) error { cfg.Enabled = parseSwitch(v); return nil }},
	{KeyVendorID, func(cfg *GadgetConfig, v string) error {
		id, err := ParseID(v)
		if err != nil {
			return err
		}
		cfg.VendorID = id
		return nil
	}},
	{KeyProductID, func(cfg *GadgetConfig, v string) error {
		id, err := ParseID(v)
		if err != nil {
			return err
		}
		cfg.ProductID = id
		return nil
	}},
	{KeySerial, func(cfg *GadgetConfig, v string) error { cfg.Serial = v; return nil }},
	{KeyManufacturer, func(cfg *GadgetConfig, v string) error { cfg.Manufacturer = v; return nil }},
	{KeyProduct, func(cfg *GadgetConfig, v string) error { cfg.Product = v; return nil }},
	{KeyConfigurationName, func(cfg *GadgetConfig, v string) error { cfg.ConfigurationName = v; return nil }},
}

// Load reads the configuration source at path. A missing file yields
// ErrSourceMissing; every other key falls back to its default.
func Load(path string) (*GadgetConfig, error) {
	parser, err := NewParser()
	if err != nil {
		return nil, err
	}
	src, err := parser.ParseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := FromSource(src)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads a configuration source from r.
func Parse(r io.Reader) (*GadgetConfig, error) {
	parser, err := NewParser()
	if err != nil {
		return nil, err
	}
	src, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}
	return FromSource(src)
}

// FromSource resolves a parsed source into a GadgetConfig, applying defaults
// for keys that are absent or empty.
func FromSource(src *SourceFile) (*GadgetConfig, error) {
	cfg := Default()

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.key] = true

		value, ok := src.Lookup(f.key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := f.apply(cfg, strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
	}

	for _, key := range src.Keys() {
		if !known[key] {
			cfg.Ignored = append(cfg.Ignored, key)
		}
	}

	return cfg, nil
}

// ParseID parses a 16-bit USB identifier written as hex (0x1d6b) or decimal.
func ParseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB identifier %q", s)
	}
	return uint16(v), nil
}

// parseSwitch treats only an explicit "off" spelling as disabled, so a
// mistyped value never turns provisioning off.
func parseSwitch(s string) bool {
	switch strings.ToLower(s) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
