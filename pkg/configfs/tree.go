package configfs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// DefaultRoot is the conventional configfs mount point.
const DefaultRoot = "/sys/kernel/config"

var (
	// ErrNotExist reports a missing node.
	ErrNotExist = errors.New("configfs: node does not exist")

	// ErrExist reports a node that is already present where a new one was
	// requested.
	ErrExist = errors.New("configfs: node already exists")

	// ErrNotDir reports an operation that requires a directory node.
	ErrNotDir = errors.New("configfs: not a directory")

	// ErrInvalidPath reports a path that escapes the tree root.
	ErrInvalidPath = errors.New("configfs: invalid path")
)

// Tree abstracts a configfs-style hierarchy of directories, scalar attributes
// and symbolic links. Paths are slash separated and relative to the tree root.
type Tree interface {
	// Mkdir creates the directory and any missing parents. Existing
	// directories are left untouched.
	Mkdir(path string) error
	// WriteAttr overwrites a scalar attribute.
	WriteAttr(path, value string) error
	// ReadAttr returns an attribute value with the trailing newline removed.
	ReadAttr(path string) (string, error)
	// Symlink creates link pointing at the existing node target.
	Symlink(target, link string) error
	// Exists reports whether any node is present at path. Links are not
	// followed.
	Exists(path string) (bool, error)
	// List returns the names of the entries of a directory, sorted.
	List(path string) ([]string, error)
}

// Clean normalises a tree-relative path. Parent references are rejected so a
// path can never leave the root.
func Clean(p string) (string, error) {
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	c := strings.TrimPrefix(path.Clean("/"+p), "/")
	if c == "" {
		return ".", nil
	}
	return c, nil
}

func trimValue(v string) string {
	return strings.TrimRight(v, "\n")
}
