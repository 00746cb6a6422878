// Package provision sequences the steps that turn a configuration source
// into a USB serial gadget bound to a device controller.
//
// A run moves strictly forward through
//
//	Unconfigured → ConfigLoaded → ModuleReady → ConfigfsMounted →
//	DescriptorWritten → FunctionAttached → Bound
//
// and may leave early through one of the fail-open terminal states
// (Disabled, SkippedNoModule, SkippedNoController), which are successful
// outcomes, or through Fatal when the configuration source is missing or
// configfs cannot be mounted. Any other step error aborts the run with
// OutcomeFailed and the state the run had reached.
//
// Nothing is rolled back on failure. Every step converges when repeated, so
// the next run repairs whatever a previous, interrupted run left behind.
//
// A bound gadget is unbound before its descriptors are rewritten, not only
// before the controller is bound again, so descriptor changes never land on a
// live gadget.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/rpitalk/rpitalk-gadget/pkg/config"
	"github.com/rpitalk/rpitalk-gadget/pkg/configfs"
	"github.com/rpitalk/rpitalk-gadget/pkg/gadget"
	"github.com/rpitalk/rpitalk-gadget/pkg/kmod"
	"github.com/rpitalk/rpitalk-gadget/pkg/udc"
)

// Orchestrator wires the collaborators of a provisioning run.
type Orchestrator struct {
	// ConfigPath is the configuration source. It must exist.
	ConfigPath string

	Modules kmod.Loader
	// Module overrides kmod.Composite.
	Module string

	Mounter configfs.Mounter
	// MountPoint overrides configfs.DefaultRoot.
	MountPoint string

	// Tree is the configfs tree rooted at MountPoint.
	Tree        configfs.Tree
	Controllers udc.Lister
	Layout      gadget.Layout

	// PreferredUDC is bound when enumerable, otherwise the first controller is.
	PreferredUDC string
}

// Result describes how a run ended.
type Result struct {
	State   State   `json:"state"`
	Outcome Outcome `json:"outcome"`
	Trail   []State `json:"trail"`

	// Controller is the controller bound by this run.
	Controller string `json:"controller,omitempty"`
	// Previous is the controller the gadget was bound to when the run started.
	Previous string `json:"previous,omitempty"`
	// Mounted is true when this run had to mount configfs.
	Mounted bool `json:"mounted,omitempty"`
	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`

	Err error `json:"-"`
}

// ExitCode maps the result onto the process exit status: 0 for provisioned
// and skipped runs, 1 otherwise.
func (r *Result) ExitCode() int {
	if r.Outcome == OutcomeFailed {
		return 1
	}
	return 0
}

func (r *Result) advance(logger logr.Logger, to State) {
	if want, ok := NextState(r.State); !ok || want != to {
		panic(fmt.Sprintf("provision: illegal transition %s -> %s", r.State, to))
	}
	logger.V(1).Info("State transition", "from", r.State, "to", to)
	r.State = to
	r.Trail = append(r.Trail, to)
}

func (r *Result) skip(logger logr.Logger, to State, reason string) Result {
	logger.Info("Nothing to provision", "state", to, "reason", reason)
	r.State = to
	r.Trail = append(r.Trail, to)
	r.Outcome = OutcomeSkipped
	r.Reason = reason
	return *r
}

func (r *Result) fatal(logger logr.Logger, err error) Result {
	logger.Error(err, "Provisioning impossible", "state", r.State)
	r.State = StateFatal
	r.Trail = append(r.Trail, StateFatal)
	r.Outcome = OutcomeFailed
	r.Err = err
	return *r
}

func (r *Result) fail(logger logr.Logger, err error) Result {
	logger.Error(err, "Provisioning aborted", "state", r.State)
	r.Outcome = OutcomeFailed
	r.Err = err
	return *r
}

func (o *Orchestrator) validate() error {
	switch {
	case o.Modules == nil:
		return errors.New("provision: no module loader")
	case o.Mounter == nil:
		return errors.New("provision: no mounter")
	case o.Tree == nil:
		return errors.New("provision: no configfs tree")
	case o.Controllers == nil:
		return errors.New("provision: no controller lister")
	}
	return nil
}

// Run executes one provisioning pass. It never panics on collaborator errors;
// the returned Result carries the error for failed runs.
func (o *Orchestrator) Run(ctx context.Context) Result {
	logger := logr.FromContextOrDiscard(ctx).WithName("provision")
	ctx = logr.NewContext(ctx, logger)

	r := &Result{
		State: StateUnconfigured,
		Trail: []State{StateUnconfigured},
	}
	if err := o.validate(); err != nil {
		return r.fail(logger, err)
	}

	module := o.Module
	if module == "" {
		module = kmod.Composite
	}
	mountPoint := o.MountPoint
	if mountPoint == "" {
		mountPoint = configfs.DefaultRoot
	}
	layout := o.Layout
	if layout.Name == "" {
		layout = gadget.NewLayout("")
	}

	// Configuration source
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		if errors.Is(err, config.ErrSourceMissing) {
			return r.fatal(logger, err)
		}
		return r.fail(logger, err)
	}
	if len(cfg.Ignored) > 0 {
		logger.V(1).Info("Ignoring unrecognised keys", "keys", cfg.Ignored)
	}
	r.advance(logger, StateConfigLoaded)

	if !cfg.Enabled {
		return r.skip(logger, StateDisabled, config.KeyEnableGadget+"=0")
	}

	// Kernel support
	if err := ctx.Err(); err != nil {
		return r.fail(logger, err)
	}
	if err := o.Modules.Load(ctx, module); err != nil {
		if errors.Is(err, kmod.ErrUnavailable) {
			return r.skip(logger, StateSkippedNoModule, err.Error())
		}
		return r.fail(logger, err)
	}
	r.advance(logger, StateModuleReady)

	// configfs
	if err := ctx.Err(); err != nil {
		return r.fail(logger, err)
	}
	mounted, err := configfs.Ensure(o.Mounter, mountPoint)
	if err != nil {
		return r.fatal(logger, err)
	}
	if mounted {
		logger.Info("Mounted configfs", "path", mountPoint)
	}
	r.Mounted = mounted
	r.advance(logger, StateConfigfsMounted)

	// Descriptors
	builder := gadget.NewBuilder(o.Tree, layout)
	if err := ctx.Err(); err != nil {
		return r.fail(logger, err)
	}
	previous, err := builder.Unbind(ctx)
	r.Previous = previous
	if err != nil {
		return r.fail(logger, err)
	}
	if err := builder.WriteDescriptors(ctx, cfg); err != nil {
		return r.fail(logger, err)
	}
	r.advance(logger, StateDescriptorWritten)

	// Serial function
	if err := ctx.Err(); err != nil {
		return r.fail(logger, err)
	}
	if err := builder.AttachFunction(ctx); err != nil {
		return r.fail(logger, err)
	}
	r.advance(logger, StateFunctionAttached)

	// Controller
	if err := ctx.Err(); err != nil {
		return r.fail(logger, err)
	}
	controller, err := udc.Select(o.Controllers, o.PreferredUDC)
	if err != nil {
		if errors.Is(err, udc.ErrNoController) {
			return r.skip(logger, StateSkippedNoController, err.Error())
		}
		return r.fail(logger, err)
	}
	if err := builder.Bind(ctx, controller); err != nil {
		return r.fail(logger, err)
	}
	r.Controller = controller
	r.advance(logger, StateBound)
	r.Outcome = OutcomeProvisioned

	logger.Info("Gadget provisioned",
		"gadget", layout.Name,
		"udc", controller,
		"idVendor", fmt.Sprintf("0x%04x", cfg.VendorID),
		"idProduct", fmt.Sprintf("0x%04x", cfg.ProductID))
	return *r
}
