package configfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

// DirTree is a Tree backed by a real directory, normally the configfs mount
// point. Pointing it at a scratch directory gives a faithful stand-in for
// tests, minus the kernel side effects.
type DirTree struct {
	root string
}

// NewDirTree returns a Tree rooted at dir.
func NewDirTree(dir string) *DirTree {
	return &DirTree{root: dir}
}

// Root returns the directory the tree is rooted at.
func (t *DirTree) Root() string {
	return t.root
}

func (t *DirTree) abs(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(t.root, filepath.FromSlash(c)), nil
}

func (t *DirTree) Mkdir(p string) error {
	abs, err := t.abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("configfs: mkdir %s: %w", p, mapErr(err))
	}
	return nil
}

func (t *DirTree) WriteAttr(p, value string) error {
	abs, err := t.abs(p)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("configfs: write %s: %w", p, mapErr(err))
	}
	// configfs consumes a whole attribute per write(2); keep it a single call.
	if _, err := f.Write([]byte(value + "\n")); err != nil {
		f.Close()
		return fmt.Errorf("configfs: write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("configfs: write %s: %w", p, err)
	}
	return nil
}

func (t *DirTree) ReadAttr(p string) (string, error) {
	abs, err := t.abs(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("configfs: read %s: %w", p, mapErr(err))
	}
	return trimValue(string(data)), nil
}

func (t *DirTree) Symlink(target, link string) error {
	absTarget, err := t.abs(target)
	if err != nil {
		return err
	}
	absLink, err := t.abs(link)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(absTarget); err != nil {
		return fmt.Errorf("configfs: link target %s: %w", target, mapErr(err))
	}
	if err := os.Symlink(absTarget, absLink); err != nil {
		return fmt.Errorf("configfs: symlink %s -> %s: %w", link, target, mapErr(err))
	}
	return nil
}

func (t *DirTree) Exists(p string) (bool, error) {
	abs, err := t.abs(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("configfs: stat %s: %w", p, err)
	}
	return true, nil
}

func (t *DirTree) List(p string) ([]string, error) {
	abs, err := t.abs(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("configfs: list %s: %w", p, mapErr(err))
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// mapErr folds filesystem errors onto the package sentinels while keeping the
// original error in the chain.
func mapErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotExist, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", ErrExist, err)
	case errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%w: %w", ErrNotDir, err)
	}
	return err
}
