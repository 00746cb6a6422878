package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rpitalk/rpitalk-gadget/pkg/config"
	"github.com/rpitalk/rpitalk-gadget/pkg/configfs"
	"github.com/rpitalk/rpitalk-gadget/pkg/gadget"
	"github.com/rpitalk/rpitalk-gadget/pkg/kmod"
	"github.com/rpitalk/rpitalk-gadget/pkg/serial"
	"github.com/rpitalk/rpitalk-gadget/pkg/udc"
)

// resetFlags restores flag variables so values do not leak between runs.
func resetFlags() {
	verbosity = 0
	development = false
	configPath = config.DefaultPath
	configfsRoot = configfs.DefaultRoot
	udcClassDir = udc.DefaultClassDir
	gadgetName = gadget.DefaultName
	preferredUDC = ""
	backend = backendConfigfs
	mountTable = configfs.DefaultMountTable
	sysModuleDir = kmod.DefaultSysModuleDir
	jsonOutput = false
	simUDCs = nil
	simNoModule = false
	simDump = false
	serialDevice = serial.DefaultDevice
	serialTimeout = 0
	serialInterval = serial.DefaultPollInterval
	serialRaw = true
}

// execute runs the CLI with args and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	resetFlags()
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done
	return buf.String(), err
}

func writeSource(t *testing.T, source string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gadget.conf")
	if err := os.WriteFile(p, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// TestProvisionSimE2E tests the provision command against the sim backend
func TestProvisionSimE2E(t *testing.T) {
	arduino := writeSource(t, "ENABLE_GADGET=1\nVENDOR_ID=0x2341\nPRODUCT_ID=0x8037\n")
	defaults := writeSource(t, "# nothing set\n")
	disabled := writeSource(t, "ENABLE_GADGET=0\n")
	broken := writeSource(t, "VENDOR_ID=0xzz\n")

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name: "bound with configured ids",
			args: []string{"provision", "--backend", "sim", "--config", arduino, "--sim-udcs", "ctrlA", "--sim-dump"},
			wantContain: []string{
				"Gadget rpitalk: provisioned (Bound)",
				"Controller: ctrlA",
				"usb_gadget/rpitalk/idVendor = 0x2341",
				"usb_gadget/rpitalk/idProduct = 0x8037",
				"usb_gadget/rpitalk/configs/c.1/acm.usb0 -> usb_gadget/rpitalk/functions/acm.usb0",
				"usb_gadget/rpitalk/UDC = ctrlA",
			},
		},
		{
			name: "defaults",
			args: []string{"provision", "--backend", "sim", "--config", defaults, "--sim-udcs", "ctrlA", "--sim-dump"},
			wantContain: []string{
				"usb_gadget/rpitalk/idVendor = 0x1d6b",
				"usb_gadget/rpitalk/idProduct = 0x0104",
				"usb_gadget/rpitalk/strings/0x409/product = RPITalk Synth Emulator",
			},
		},
		{
			name: "preferred controller",
			args: []string{"provision", "--backend", "sim", "--config", defaults, "--sim-udcs", "ctrlA,ctrlB", "--udc", "ctrlB"},
			wantContain: []string{
				"Controller: ctrlB",
			},
		},
		{
			name: "custom gadget name",
			args: []string{"provision", "--backend", "sim", "--config", defaults, "--sim-udcs", "ctrlA", "--gadget-name", "speech", "--sim-dump"},
			wantContain: []string{
				"Gadget speech: provisioned (Bound)",
				"usb_gadget/speech/UDC = ctrlA",
			},
		},
		{
			name: "no controller is skipped",
			args: []string{"provision", "--backend", "sim", "--config", arduino},
			wantContain: []string{
				"skipped (SkippedNoController)",
				"Reason:",
			},
		},
		{
			name: "no module is skipped",
			args: []string{"provision", "--backend", "sim", "--config", arduino, "--sim-udcs", "ctrlA", "--sim-no-module"},
			wantContain: []string{
				"skipped (SkippedNoModule)",
			},
		},
		{
			name: "disabled",
			args: []string{"provision", "--backend", "sim", "--config", disabled, "--sim-udcs", "ctrlA"},
			wantContain: []string{
				"skipped (Disabled)",
			},
		},
		{
			name: "json result",
			args: []string{"provision", "--backend", "sim", "--config", arduino, "--sim-udcs", "ctrlA", "--json"},
			wantContain: []string{
				`"state": "Bound"`,
				`"outcome": "provisioned"`,
				`"controller": "ctrlA"`,
			},
		},
		{
			name:    "missing source",
			args:    []string{"provision", "--backend", "sim", "--config", filepath.Join(t.TempDir(), "absent.conf"), "--sim-udcs", "ctrlA"},
			wantErr: true,
		},
		{
			name:    "invalid source",
			args:    []string{"provision", "--backend", "sim", "--config", broken, "--sim-udcs", "ctrlA"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			args:    []string{"provision", "--backend", "usbip", "--config", arduino},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v\nOutput: %s", err, output)
				return
			}

			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

// fakeHost lays out a directory tree that stands in for the kernel
// interfaces the configfs backend touches.
type fakeHost struct {
	configfs, udcClass, sysModule, mountTable string
}

func newFakeHost(t *testing.T, controllers ...string) fakeHost {
	t.Helper()
	dir := t.TempDir()
	h := fakeHost{
		configfs:   filepath.Join(dir, "config"),
		udcClass:   filepath.Join(dir, "udc"),
		sysModule:  filepath.Join(dir, "module"),
		mountTable: filepath.Join(dir, "mounts"),
	}
	for _, d := range []string{h.configfs, h.udcClass, filepath.Join(h.sysModule, kmod.Composite)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range controllers {
		if err := os.Mkdir(filepath.Join(h.udcClass, c), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	table := "proc /proc proc rw 0 0\nconfigfs " + h.configfs + " configfs rw,relatime 0 0\n"
	if err := os.WriteFile(h.mountTable, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h fakeHost) args(cmd string, extra ...string) []string {
	args := []string{cmd, "--configfs", h.configfs, "--udc-class", h.udcClass}
	if cmd == "provision" {
		args = append(args, "--sys-module", h.sysModule, "--mount-table", h.mountTable)
	}
	return append(args, extra...)
}

// TestProvisionOnDiskE2E provisions into a directory tree and reads it back
func TestProvisionOnDiskE2E(t *testing.T) {
	host := newFakeHost(t, "fe980000.usb")
	source := writeSource(t, "VENDOR_ID=0x2341\nPRODUCT_ID=0x8037\nSERIAL=\"talker 7\"\n")

	for i := 0; i < 2; i++ {
		output, err := execute(t, host.args("provision", "--config", source)...)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v\nOutput: %s", i, err, output)
		}
		if !strings.Contains(output, "provisioned (Bound)") {
			t.Fatalf("run %d: not provisioned:\n%s", i, output)
		}
		if i == 1 && !strings.Contains(output, "Unbound:    fe980000.usb") {
			t.Errorf("second run should unbind before rewriting:\n%s", output)
		}
	}

	output, err := execute(t, host.args("status")...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"Gadget rpitalk",
		"VID:PID:       0x2341:0x8037",
		"Serial:        talker 7",
		"Functions:     acm.usb0",
		"Bound to:      fe980000.usb",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status missing %q\nGot:\n%s", want, output)
		}
	}

	output, err = execute(t, host.args("status", "--json")...)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	if !strings.Contains(output, `"udc": "fe980000.usb"`) || !strings.Contains(output, `"present": true`) {
		t.Errorf("unexpected json status:\n%s", output)
	}
}

func TestProvisionUnmountedFailsE2E(t *testing.T) {
	host := newFakeHost(t, "fe980000.usb")
	// A mount table without configfs forces a real mount, which must fail
	// against a plain temp directory for an unprivileged test.
	if err := os.WriteFile(host.mountTable, []byte("proc /proc proc rw 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if os.Geteuid() == 0 {
		t.Skip("root may be able to mount configfs")
	}

	output, err := execute(t, host.args("provision", "--config", writeSource(t, ""))...)
	if err == nil {
		t.Fatalf("expected error\nOutput: %s", output)
	}
	if !strings.Contains(output, "failed (Fatal)") {
		t.Errorf("expected fatal outcome:\n%s", output)
	}
}

func TestStatusAbsentE2E(t *testing.T) {
	host := newFakeHost(t)
	output, err := execute(t, host.args("status")...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(output, "Gadget rpitalk is not present") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestControllersE2E(t *testing.T) {
	host := newFakeHost(t, "musb-hdrc.0", "fe980000.usb")
	output, err := execute(t, "controllers", "--udc-class", host.udcClass)
	if err != nil {
		t.Fatalf("controllers: %v", err)
	}
	for _, want := range []string{"- fe980000.usb", "- musb-hdrc.0"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q\nGot:\n%s", want, output)
		}
	}

	output, err = execute(t, "controllers", "--udc-class", filepath.Join(t.TempDir(), "none"))
	if err != nil {
		t.Fatalf("controllers: %v", err)
	}
	if !strings.Contains(output, "No device controllers found.") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestWaitSerialE2E(t *testing.T) {
	dev := filepath.Join(t.TempDir(), "ttyGS0")
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(dev, nil, 0o600)
	}()

	output, err := execute(t, "wait-serial", "--device", dev, "--interval", "10ms", "--timeout", "5s", "--raw=false")
	if err != nil {
		t.Fatalf("wait-serial: %v", err)
	}
	if !strings.Contains(output, "ready") {
		t.Errorf("unexpected output:\n%s", output)
	}

	_, err = execute(t, "wait-serial", "--device", filepath.Join(t.TempDir(), "never"), "--interval", "10ms", "--timeout", "50ms")
	if err == nil {
		t.Errorf("expected timeout error")
	}
}

func TestProbeMatcherE2E(t *testing.T) {
	resetFlags()
	configPath = writeSource(t, "VENDOR_ID=0x2341\nPRODUCT_ID=0x8037\n")
	m, err := probeMatcher(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m.VendorID != 0x2341 || m.ProductID != 0x8037 {
		t.Errorf("matcher = %04x:%04x, want 2341:8037", m.VendorID, m.ProductID)
	}

	probePID = "0x0001"
	defer func() { probePID = "" }()
	configPath = filepath.Join(t.TempDir(), "absent.conf")
	m, err = probeMatcher(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m.VendorID != config.DefaultVendorID || m.ProductID != 0x0001 {
		t.Errorf("matcher = %04x:%04x", m.VendorID, m.ProductID)
	}
}
