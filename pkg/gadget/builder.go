package gadget

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-logr/logr"

	"github.com/rpitalk/rpitalk-gadget/pkg/config"
	"github.com/rpitalk/rpitalk-gadget/pkg/configfs"
)

// Builder writes one gadget into a configfs tree. Every operation converges:
// running it again against an already provisioned gadget changes nothing.
type Builder struct {
	tree   configfs.Tree
	layout Layout
}

// NewBuilder wires a tree with the gadget layout.
func NewBuilder(tree configfs.Tree, layout Layout) *Builder {
	return &Builder{
		tree:   tree,
		layout: layout,
	}
}

// Exists reports whether the gadget directory is present.
func (b *Builder) Exists() (bool, error) {
	return b.tree.Exists(b.layout.Root())
}

// WriteDescriptors creates the gadget and writes its identity, its string
// descriptors and the configuration with its strings. Attribute writes are
// unconditional overwrites.
func (b *Builder) WriteDescriptors(ctx context.Context, cfg *config.GadgetConfig) error {
	logger := logr.FromContextOrDiscard(ctx)

	for _, item := range descriptorItems(b.layout, cfg) {
		if err := b.apply(ctx, item); err != nil {
			return err
		}
	}

	logger.V(1).Info("Descriptors written",
		"gadget", b.layout.Name,
		"idVendor", formatID(cfg.VendorID),
		"idProduct", formatID(cfg.ProductID))
	return nil
}

// AttachFunction ensures the ACM function exists and is linked exactly once
// into the configuration.
func (b *Builder) AttachFunction(ctx context.Context) error {
	return b.apply(ctx, acmFunctionItem(b.layout))
}

func (b *Builder) apply(ctx context.Context, item configItem) error {
	logger := logr.FromContextOrDiscard(ctx)

	dir := item.dir
	if err := b.tree.Mkdir(dir); err != nil {
		return fmt.Errorf("gadget: create %s: %w", dir, err)
	}
	for _, attr := range item.attrs {
		p := path.Join(dir, attr.name)
		if err := b.tree.WriteAttr(p, attr.value); err != nil {
			return fmt.Errorf("gadget: write %s: %w", p, err)
		}
	}

	link := item.link
	if link == "" {
		return nil
	}

	// The link may only be created once its target exists, and creating it a
	// second time would fail, so check first.
	exists, err := b.tree.Exists(link)
	if err != nil {
		return fmt.Errorf("gadget: check %s: %w", link, err)
	}
	if exists {
		logger.V(1).Info("Function already linked", "link", link)
		return nil
	}
	if err := b.tree.Symlink(dir, link); err != nil {
		return fmt.Errorf("gadget: link %s: %w", link, err)
	}
	logger.V(1).Info("Function linked", "function", dir, "link", link)
	return nil
}

// Binding returns the controller the gadget is bound to, or "" when unbound
// or not yet created.
func (b *Builder) Binding() (string, error) {
	v, err := b.tree.ReadAttr(b.layout.UDC())
	if err != nil {
		if errors.Is(err, configfs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("gadget: read binding: %w", err)
	}
	return v, nil
}

// Unbind clears the controller binding if one is set. It returns the
// controller that was bound.
func (b *Builder) Unbind(ctx context.Context) (string, error) {
	current, err := b.Binding()
	if err != nil {
		return "", err
	}
	if current == "" {
		return "", nil
	}
	if err := b.tree.WriteAttr(b.layout.UDC(), ""); err != nil {
		return current, fmt.Errorf("gadget: unbind from %s: %w", current, err)
	}
	logr.FromContextOrDiscard(ctx).Info("Gadget unbound", "udc", current)
	return current, nil
}

// Bind attaches the gadget to controller. Any existing binding is cleared
// first because the kernel refuses to rebind a bound gadget.
func (b *Builder) Bind(ctx context.Context, controller string) error {
	if controller == "" {
		return fmt.Errorf("gadget: bind: empty controller name")
	}
	if _, err := b.Unbind(ctx); err != nil {
		return err
	}
	if err := b.tree.WriteAttr(b.layout.UDC(), controller); err != nil {
		return fmt.Errorf("gadget: bind to %s: %w", controller, err)
	}
	logr.FromContextOrDiscard(ctx).Info("Gadget bound", "udc", controller)
	return nil
}
