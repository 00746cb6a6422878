package configfs

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// treeImpls runs each behavioural test against both implementations so the
// in-memory tree stays faithful to the on-disk one.
func treeImpls(t *testing.T) map[string]func() Tree {
	return map[string]func() Tree{
		"dir": func() Tree { return NewDirTree(t.TempDir()) },
		"sim": func() Tree { return NewSimTree() },
	}
}

func TestTreeMkdirIdempotent(t *testing.T) {
	for name, newTree := range treeImpls(t) {
		t.Run(name, func(t *testing.T) {
			tree := newTree()
			for i := 0; i < 2; i++ {
				if err := tree.Mkdir("usb_gadget/g1/strings/0x409"); err != nil {
					t.Fatalf("Mkdir #%d returned error: %v", i+1, err)
				}
			}
			names, err := tree.List("usb_gadget/g1")
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if diff := cmp.Diff([]string{"strings"}, names); diff != "" {
				t.Fatalf("List mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTreeAttributes(t *testing.T) {
	for name, newTree := range treeImpls(t) {
		t.Run(name, func(t *testing.T) {
			tree := newTree()
			if err := tree.WriteAttr("missing/idVendor", "0x1d6b"); !errors.Is(err, ErrNotExist) {
				t.Fatalf("WriteAttr without parent = %v, want ErrNotExist", err)
			}

			if err := tree.Mkdir("g"); err != nil {
				t.Fatalf("Mkdir returned error: %v", err)
			}
			if err := tree.WriteAttr("g/idVendor", "0x1d6b"); err != nil {
				t.Fatalf("WriteAttr returned error: %v", err)
			}
			if err := tree.WriteAttr("g/idVendor", "0x2341"); err != nil {
				t.Fatalf("second WriteAttr returned error: %v", err)
			}
			got, err := tree.ReadAttr("g/idVendor")
			if err != nil {
				t.Fatalf("ReadAttr returned error: %v", err)
			}
			if got != "0x2341" {
				t.Fatalf("ReadAttr = %q, want 0x2341", got)
			}

			if _, err := tree.ReadAttr("g/UDC"); !errors.Is(err, ErrNotExist) {
				t.Fatalf("ReadAttr missing = %v, want ErrNotExist", err)
			}
		})
	}
}

func TestTreeSymlink(t *testing.T) {
	for name, newTree := range treeImpls(t) {
		t.Run(name, func(t *testing.T) {
			tree := newTree()
			if err := tree.Mkdir("g/configs/c.1"); err != nil {
				t.Fatalf("Mkdir returned error: %v", err)
			}
			if err := tree.Symlink("g/functions/acm.usb0", "g/configs/c.1/acm.usb0"); !errors.Is(err, ErrNotExist) {
				t.Fatalf("Symlink to missing target = %v, want ErrNotExist", err)
			}

			if err := tree.Mkdir("g/functions/acm.usb0"); err != nil {
				t.Fatalf("Mkdir returned error: %v", err)
			}
			if err := tree.Symlink("g/functions/acm.usb0", "g/configs/c.1/acm.usb0"); err != nil {
				t.Fatalf("Symlink returned error: %v", err)
			}
			if err := tree.Symlink("g/functions/acm.usb0", "g/configs/c.1/acm.usb0"); !errors.Is(err, ErrExist) {
				t.Fatalf("duplicate Symlink = %v, want ErrExist", err)
			}

			ok, err := tree.Exists("g/configs/c.1/acm.usb0")
			if err != nil || !ok {
				t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
			}
		})
	}
}

func TestTreeRejectsParentReferences(t *testing.T) {
	for name, newTree := range treeImpls(t) {
		t.Run(name, func(t *testing.T) {
			if err := newTree().Mkdir("../escape"); !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("Mkdir(../escape) = %v, want ErrInvalidPath", err)
			}
		})
	}
}

func TestSimTreeRecordsWrites(t *testing.T) {
	sim := NewSimTree()
	if err := sim.Mkdir("g"); err != nil {
		t.Fatalf("Mkdir returned error: %v", err)
	}
	for _, v := range []string{"", "ctrl0\n"} {
		if err := sim.WriteAttr("g/UDC", v); err != nil {
			t.Fatalf("WriteAttr returned error: %v", err)
		}
	}
	if diff := cmp.Diff([]string{"", "ctrl0"}, sim.Writes("/g/UDC")); diff != "" {
		t.Fatalf("Writes mismatch (-want +got):\n%s", diff)
	}

	want := map[string]string{"g": "", "g/UDC": "ctrl0"}
	if diff := cmp.Diff(want, sim.Snapshot()); diff != "" {
		t.Fatalf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSimTreeWriteHook(t *testing.T) {
	sim := NewSimTree()
	busy := errors.New("device or resource busy")
	sim.OnWrite = func(path, value string) error {
		if path == "g/UDC" && value != "" {
			return busy
		}
		return nil
	}
	if err := sim.Mkdir("g"); err != nil {
		t.Fatalf("Mkdir returned error: %v", err)
	}
	if err := sim.WriteAttr("g/UDC", "ctrl0"); !errors.Is(err, busy) {
		t.Fatalf("WriteAttr = %v, want hook error", err)
	}
	if ok, _ := sim.Exists("g/UDC"); ok {
		t.Fatalf("rejected write must not create the attribute")
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":             ".",
		"/":            ".",
		"a/b/":         "a/b",
		"/a//b/./c":    "a/b/c",
		"usb_gadget/g": "usb_gadget/g",
	}
	for in, want := range tests {
		got, err := Clean(in)
		if err != nil {
			t.Fatalf("Clean(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}
