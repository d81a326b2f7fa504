package backends

import (
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/types/shapes"
)

// LoadOptions configures how an executable is bound to a live backend.
type LoadOptions struct {
	// DeviceAssignment lists the device IDs to bind, one replica per entry:
	// replica i runs on the device with ID DeviceAssignment[i]. Empty means
	// one replica on the backend's first device.
	DeviceAssignment []devices.ID

	// Tracer observes the executions of the loaded executable. Nil means
	// NopTracer.
	Tracer Tracer
}

// ExecuteOptions configures one execution.
type ExecuteOptions struct {
	// DonateInputs marks arguments whose buffers the execution may consume:
	// a donated buffer is finalized by Execute and must not be used again.
	// Empty means no donation; otherwise len must match the number of
	// inputs.
	DonateInputs []bool
}

// LoadedExecutable is an executable bound to the devices of a live backend,
// ready to run. It is obtained with Backend.Load or LoadSerialized and stays
// valid until Finalize, independently of the Executable it was loaded from.
type LoadedExecutable interface {
	// ID returns a unique identifier of this loaded instance, for logs and
	// traces. Loading the same executable twice yields two IDs.
	ID() string

	// Name returns the executable's name.
	Name() string

	// Devices returns the devices the executable is bound to, one per
	// replica.
	Devices() devices.List

	// InputShapes returns the per-replica argument shapes, in order.
	InputShapes() []shapes.Shape

	// OutputShapes returns the per-replica result shapes, in order.
	OutputShapes() []shapes.Shape

	// Execute runs the executable synchronously. args[i] holds the
	// arguments for replica i, each matching InputShapes; every argument
	// buffer must live on the replica's device. It returns one slice of
	// fresh output buffers per replica, owned by the caller. It returns
	// ErrArgumentMismatch for malformed arguments and ErrExecutionFailed
	// for faults during the run.
	Execute(args [][]Buffer, options ExecuteOptions) ([][]Buffer, error)

	// Finalize immediately frees resources associated to the loaded
	// executable. Execute fails afterwards.
	Finalize()
}
