package configfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMounts = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0
configfs /sys/kernel/config configfs rw,nosuid,nodev,noexec,relatime 0 0
tmpfs /run/with\040space tmpfs rw 0 0
configfs /mnt/with\040space configfs rw 0 0
`

func TestMountedIn(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/sys/kernel/config", true},
		{"/sys/kernel/config/", true},
		{"/sys/kernel", false},
		{"/run/with space", false}, // tmpfs, not configfs
		{"/mnt/with space", true},
	}
	for _, tt := range tests {
		got, err := mountedIn(strings.NewReader(sampleMounts), tt.path)
		if err != nil {
			t.Fatalf("mountedIn(%q) error: %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("mountedIn(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSystemMounterReadsTable(t *testing.T) {
	table := filepath.Join(t.TempDir(), "mounts")
	if err := os.WriteFile(table, []byte(sampleMounts), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	m := &SystemMounter{MountTable: table}
	ok, err := m.IsMounted(DefaultRoot)
	if err != nil || !ok {
		t.Fatalf("IsMounted = %v, %v; want true, nil", ok, err)
	}

	missing := &SystemMounter{MountTable: filepath.Join(t.TempDir(), "absent")}
	if _, err := Ensure(missing, DefaultRoot); !errors.Is(err, ErrMount) {
		t.Fatalf("Ensure with unreadable table = %v, want ErrMount", err)
	}
}

func TestEnsureSkipsExistingMount(t *testing.T) {
	m := &SimMounter{Mounted: true}
	did, err := Ensure(m, DefaultRoot)
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if did || m.Mounts() != 0 {
		t.Fatalf("Ensure mounted over an existing mount (did=%v mounts=%d)", did, m.Mounts())
	}
}

func TestEnsureMountsOnce(t *testing.T) {
	m := &SimMounter{}
	for i := 0; i < 2; i++ {
		if _, err := Ensure(m, DefaultRoot); err != nil {
			t.Fatalf("Ensure #%d returned error: %v", i+1, err)
		}
	}
	if m.Mounts() != 1 {
		t.Fatalf("Mounts = %d, want 1", m.Mounts())
	}
}

func TestEnsureWrapsFailure(t *testing.T) {
	m := &SimMounter{Err: errors.New("unknown filesystem type 'configfs'")}
	if _, err := Ensure(m, DefaultRoot); !errors.Is(err, ErrMount) {
		t.Fatalf("Ensure = %v, want ErrMount", err)
	}
}
