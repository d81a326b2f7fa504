package hostgo

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/internal/workerspool"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/types/shapes"
)

// Load implements backends.Backend: it checks the executable against this
// backend's own target, decodes the bytecode and binds it to the devices of
// options.DeviceAssignment.
func (b *Backend) Load(exec *backends.Executable, options backends.LoadOptions) (backends.LoadedExecutable, error) {
	b.AssertValid()
	if exec == nil {
		return nil, errors.Errorf("backend %q: nil executable", BackendName)
	}
	live, err := b.CaptureTarget()
	if err != nil {
		return nil, err
	}
	if err := live.Supports(exec.Target()); err != nil {
		return nil, errors.Wrapf(backends.ErrTargetIncompatible, "loading %q on %q: %v",
			exec.Name(), BackendName, err)
	}

	ops, err := parseOps(exec.Code())
	if err != nil {
		return nil, errors.Wrapf(serdes.ErrMalformedPayload, "code of executable %q: %v", exec.Name(), err)
	}
	inputShapes := exec.InputShapes()
	outputShapes := exec.OutputShapes()
	if err := checkStack(ops, inputShapes, outputShapes); err != nil {
		return nil, errors.WithMessagef(err, "code of executable %q", exec.Name())
	}

	assignment := options.DeviceAssignment
	if len(assignment) == 0 {
		assignment = []devices.ID{0}
	}
	replicaDevices := make(devices.List, len(assignment))
	for i, id := range assignment {
		replicaDevices[i], err = b.LookupDevice(id)
		if err != nil {
			return nil, errors.WithMessagef(err, "replica %d of the device assignment", i)
		}
	}

	tracer := options.Tracer
	if tracer == nil {
		tracer = backends.NopTracer{}
	}
	loaded := &loadedExecutable{
		id:           uuid.NewString(),
		backend:      b,
		name:         exec.Name(),
		devices:      replicaDevices,
		inputShapes:  inputShapes,
		outputShapes: outputShapes,
		ops:          ops,
		pool:         workerspool.New(),
		tracer:       tracer,
	}
	klog.V(1).Infof("hostgo: loaded %q as %s on %s", loaded.name, loaded.id, replicaDevices)
	return loaded, nil
}

// loadedExecutable is the bytecode bound to one device per replica.
type loadedExecutable struct {
	id      string
	backend *Backend
	name    string
	devices devices.List

	inputShapes  []shapes.Shape
	outputShapes []shapes.Shape
	ops          []op
	pool         *workerspool.Pool
	tracer       backends.Tracer

	mu        sync.Mutex
	finalized bool
}

// Compile-time check:
var _ backends.LoadedExecutable = (*loadedExecutable)(nil)

// ID returns a unique identifier of this loaded instance.
func (l *loadedExecutable) ID() string { return l.id }

// Name returns the executable's name.
func (l *loadedExecutable) Name() string { return l.name }

// Devices returns the devices the executable is bound to, one per replica.
func (l *loadedExecutable) Devices() devices.List { return slices.Clone(l.devices) }

// InputShapes returns the per-replica argument shapes, in order.
func (l *loadedExecutable) InputShapes() []shapes.Shape { return cloneShapes(l.inputShapes) }

// OutputShapes returns the per-replica result shapes, in order.
func (l *loadedExecutable) OutputShapes() []shapes.Shape { return cloneShapes(l.outputShapes) }

func cloneShapes(in []shapes.Shape) []shapes.Shape {
	out := make([]shapes.Shape, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Finalize immediately frees the resources associated to the loaded
// executable. Execute fails afterwards.
func (l *loadedExecutable) Finalize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalized = true
	l.ops = nil
}

// Execute implements backends.LoadedExecutable. Replicas run concurrently,
// bounded by a workers pool.
func (l *loadedExecutable) Execute(args [][]backends.Buffer, options backends.ExecuteOptions) (_ [][]backends.Buffer, err error) {
	span := l.tracer.Start("execute", fmt.Sprintf("%s (%s)", l.name, l.id))
	defer func() { span.End(err) }()

	l.mu.Lock()
	finalized := l.finalized
	l.mu.Unlock()
	if finalized {
		return nil, errors.Wrapf(backends.ErrExecutionFailed, "loaded executable %s was already finalized", l.id)
	}
	inputs, err := l.checkArguments(args, options)
	if err != nil {
		return nil, err
	}

	outputs := make([][]backends.Buffer, len(inputs))
	errs := make([]error, len(inputs))
	tasks := make([]func(), len(inputs))
	for r := range inputs {
		tasks[r] = func() {
			outputs[r], errs[r] = l.run(l.devices[r], inputs[r])
		}
	}
	l.pool.Run(tasks)

	// Donated buffers are consumed whether the run succeeded or not.
	for _, donated := range inputs {
		for i, donate := range options.DonateInputs {
			if donate {
				l.backend.putBuffer(donated[i])
			}
		}
	}

	for r, runErr := range errs {
		if runErr != nil {
			for _, replicaOutputs := range outputs {
				for _, buffer := range replicaOutputs {
					l.backend.putBuffer(buffer.(*Buffer))
				}
			}
			return nil, errors.WithMessagef(runErr, "replica %d of %s", r, l.id)
		}
	}
	return outputs, nil
}

// checkArguments validates arity, shapes and device placement of all
// arguments before anything runs.
func (l *loadedExecutable) checkArguments(args [][]backends.Buffer, options backends.ExecuteOptions) ([][]*Buffer, error) {
	if len(args) != len(l.devices) {
		return nil, errors.Wrapf(backends.ErrArgumentMismatch,
			"arguments for %d replicas given, executable is loaded on %d devices", len(args), len(l.devices))
	}
	if len(options.DonateInputs) != 0 && len(options.DonateInputs) != len(l.inputShapes) {
		return nil, errors.Wrapf(backends.ErrArgumentMismatch,
			"DonateInputs has %d entries, executable takes %d inputs", len(options.DonateInputs), len(l.inputShapes))
	}
	inputs := make([][]*Buffer, len(args))
	for r, replicaArgs := range args {
		if len(replicaArgs) != len(l.inputShapes) {
			return nil, errors.Wrapf(backends.ErrArgumentMismatch,
				"replica %d: %d arguments given, executable takes %d", r, len(replicaArgs), len(l.inputShapes))
		}
		inputs[r] = make([]*Buffer, len(replicaArgs))
		for i, arg := range replicaArgs {
			buffer, err := castBuffer(arg)
			if err != nil {
				return nil, errors.Wrapf(backends.ErrArgumentMismatch, "replica %d, argument %d: %v", r, i, err)
			}
			if !buffer.shape.Equal(l.inputShapes[i]) {
				return nil, errors.Wrapf(backends.ErrArgumentMismatch,
					"replica %d, argument %d has shape %s, executable takes %s",
					r, i, buffer.shape, l.inputShapes[i])
			}
			if buffer.device != l.devices[r] {
				return nil, errors.Wrapf(backends.ErrArgumentMismatch,
					"replica %d, argument %d is on device %s, the replica runs on %s",
					r, i, buffer.device, l.devices[r])
			}
			inputs[r][i] = buffer
		}
	}
	return inputs, nil
}

// run interprets the bytecode for one replica. checkStack vetted the ops at
// load time, so operands are always present and shapes always agree; popped
// operands are owned by the interpreter, which lets binary ops write their
// result in place.
func (l *loadedExecutable) run(device devices.Device, args []*Buffer) (_ []backends.Buffer, err error) {
	b := l.backend
	var stack []*Buffer
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(backends.ErrExecutionFailed, "%v", r)
		}
		if err != nil {
			for _, buffer := range stack {
				b.putBuffer(buffer)
			}
		}
	}()

	for pc, o := range l.ops {
		switch o.code {
		case opConst:
			buffer := b.newBuffer(device, shapes.Make(o.dtype))
			if err = storeScalar(o.dtype, buffer.flat, o.literal); err != nil {
				b.putBuffer(buffer)
				return nil, err
			}
			stack = append(stack, buffer)
		case opArg:
			stack = append(stack, b.cloneBuffer(args[o.arg]))
		case opAdd, opMul:
			rhs := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			lhs := stack[len(stack)-1]
			err = applyBinary(o.code, lhs.shape.DType, lhs.flat, rhs.flat)
			b.putBuffer(rhs)
			if err != nil {
				return nil, err
			}
		case opNeg:
			top := stack[len(stack)-1]
			if err = applyNeg(top.shape.DType, top.flat); err != nil {
				return nil, err
			}
		case opTrap:
			return nil, errors.Wrapf(backends.ErrExecutionFailed, "trap at instruction %d", pc)
		}
	}

	outputs := make([]backends.Buffer, len(stack))
	for i, buffer := range stack {
		outputs[i] = buffer
	}
	return outputs, nil
}
