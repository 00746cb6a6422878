package configfs

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// NodeKind distinguishes the three node types a configfs tree holds.
type NodeKind uint8

const (
	KindDir NodeKind = iota
	KindAttr
	KindLink
)

func (k NodeKind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindAttr:
		return "attr"
	case KindLink:
		return "link"
	}
	return fmt.Sprintf("NodeKind(%d)", k)
}

// OpKind identifies a mutating call recorded by SimTree.
type OpKind uint8

const (
	OpMkdir OpKind = iota
	OpWrite
	OpSymlink
)

// Op captures one mutating call for inspection within tests.
type Op struct {
	Kind  OpKind
	Path  string
	Value string // attribute value or link target
}

// WriteHook lets tests emulate kernel-side attribute validation. Returning an
// error rejects the write and leaves the previous value in place.
type WriteHook func(path, value string) error

type simNode struct {
	kind   NodeKind
	value  string
	target string
}

// SimTree is an in-memory Tree useful for unit tests. It enforces the same
// structural rules as configfs (attributes and links need an existing parent,
// links need an existing target) and records every mutating call.
type SimTree struct {
	OnWrite WriteHook

	nodes map[string]*simNode
	ops   []Op
}

// NewSimTree constructs an empty tree containing only the root directory.
func NewSimTree() *SimTree {
	return &SimTree{
		nodes: map[string]*simNode{".": {kind: KindDir}},
	}
}

// Ops returns a copy of the recorded mutating calls.
func (s *SimTree) Ops() []Op {
	return append([]Op(nil), s.ops...)
}

// Writes returns the values written to the attribute at p, oldest first.
func (s *SimTree) Writes(p string) []string {
	c, err := Clean(p)
	if err != nil {
		return nil
	}
	var values []string
	for _, op := range s.ops {
		if op.Kind == OpWrite && op.Path == c {
			values = append(values, op.Value)
		}
	}
	return values
}

// ResetOps clears the recorded call log.
func (s *SimTree) ResetOps() {
	s.ops = nil
}

// Snapshot flattens the tree into path -> description, suitable for diffing.
// Directories map to "", attributes to their value and links to "-> target".
func (s *SimTree) Snapshot() map[string]string {
	out := make(map[string]string, len(s.nodes))
	for p, n := range s.nodes {
		if p == "." {
			continue
		}
		switch n.kind {
		case KindDir:
			out[p] = ""
		case KindAttr:
			out[p] = n.value
		case KindLink:
			out[p] = "-> " + n.target
		}
	}
	return out
}

// Kind reports the node type at p.
func (s *SimTree) Kind(p string) (NodeKind, bool) {
	c, err := Clean(p)
	if err != nil {
		return 0, false
	}
	n, ok := s.nodes[c]
	if !ok {
		return 0, false
	}
	return n.kind, true
}

func (s *SimTree) Mkdir(p string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	s.ops = append(s.ops, Op{Kind: OpMkdir, Path: c})

	if c == "." {
		return nil
	}
	parts := strings.Split(c, "/")
	for i := range parts {
		prefix := path.Join(parts[:i+1]...)
		n, ok := s.nodes[prefix]
		if !ok {
			s.nodes[prefix] = &simNode{kind: KindDir}
			continue
		}
		if n.kind != KindDir {
			return fmt.Errorf("configfs: mkdir %s: %w", p, ErrNotDir)
		}
	}
	return nil
}

func (s *SimTree) WriteAttr(p, value string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	if err := s.requireDir(path.Dir(c)); err != nil {
		return fmt.Errorf("configfs: write %s: %w", p, err)
	}
	if n, ok := s.nodes[c]; ok && n.kind != KindAttr {
		return fmt.Errorf("configfs: write %s: %w", p, ErrNotDir)
	}

	value = trimValue(value)
	if s.OnWrite != nil {
		if err := s.OnWrite(c, value); err != nil {
			return fmt.Errorf("configfs: write %s: %w", p, err)
		}
	}

	s.ops = append(s.ops, Op{Kind: OpWrite, Path: c, Value: value})
	s.nodes[c] = &simNode{kind: KindAttr, value: value}
	return nil
}

func (s *SimTree) ReadAttr(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	n, ok := s.nodes[c]
	if !ok {
		return "", fmt.Errorf("configfs: read %s: %w", p, ErrNotExist)
	}
	if n.kind != KindAttr {
		return "", fmt.Errorf("configfs: read %s: not an attribute", p)
	}
	return n.value, nil
}

func (s *SimTree) Symlink(target, link string) error {
	t, err := Clean(target)
	if err != nil {
		return err
	}
	l, err := Clean(link)
	if err != nil {
		return err
	}
	if _, ok := s.nodes[t]; !ok {
		return fmt.Errorf("configfs: link target %s: %w", target, ErrNotExist)
	}
	if err := s.requireDir(path.Dir(l)); err != nil {
		return fmt.Errorf("configfs: symlink %s: %w", link, err)
	}
	if _, ok := s.nodes[l]; ok {
		return fmt.Errorf("configfs: symlink %s -> %s: %w", link, target, ErrExist)
	}

	s.ops = append(s.ops, Op{Kind: OpSymlink, Path: l, Value: t})
	s.nodes[l] = &simNode{kind: KindLink, target: t}
	return nil
}

func (s *SimTree) Exists(p string) (bool, error) {
	c, err := Clean(p)
	if err != nil {
		return false, err
	}
	_, ok := s.nodes[c]
	return ok, nil
}

func (s *SimTree) List(p string) ([]string, error) {
	c, err := Clean(p)
	if err != nil {
		return nil, err
	}
	if err := s.requireDir(c); err != nil {
		return nil, fmt.Errorf("configfs: list %s: %w", p, err)
	}

	prefix := c + "/"
	if c == "." {
		prefix = ""
	}
	var names []string
	for np := range s.nodes {
		if np == "." || !strings.HasPrefix(np, prefix) {
			continue
		}
		rest := strings.TrimPrefix(np, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

func (s *SimTree) requireDir(c string) error {
	n, ok := s.nodes[c]
	if !ok {
		return ErrNotExist
	}
	if n.kind != KindDir {
		return ErrNotDir
	}
	return nil
}
