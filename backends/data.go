package backends

import (
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/types/shapes"
)

// Buffer represents actual data (an array) stored on a device of the backend
// that is going to execute programs. It's used as input/output of executions.
// A Buffer is always associated to a device, even if there is only one.
//
// It is opaque at this layer: only the backend that created it knows how to
// interpret it.
type Buffer any

// DataInterface is the Backend's subinterface that defines the API to transfer Buffer to/from devices for the backend.
type DataInterface interface {
	// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
	// freed immediately -- as opposed to waiting for a GC.
	//
	// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
	BufferFinalize(buffer Buffer) error

	// BufferShape returns the shape for the buffer.
	BufferShape(buffer Buffer) (shapes.Shape, error)

	// BufferDevice returns the device holding the buffer.
	BufferDevice(buffer Buffer) (devices.Device, error)

	// BufferToFlatData transfers the flat values of buffer to the Go flat array.
	// The slice flat must have the exact number of elements required to store the Buffer shape.
	//
	// See also BufferFromFlatData, BufferShape, and shapes.Shape.Size.
	BufferToFlatData(buffer Buffer, flat any) error

	// BufferFromFlatData transfers data from Go given as a flat slice (of the type corresponding to the shape DType)
	// to the device, and returns the corresponding Buffer.
	BufferFromFlatData(device devices.Device, flat any, shape shapes.Shape) (Buffer, error)

	// HasSharedBuffers returns whether the backend supports "shared buffers": these are buffers
	// that can be used directly by the engine and has a local address that can be read or mutated
	// directly by the client.
	HasSharedBuffers() bool

	// NewSharedBuffer returns a "shared buffer" that can be both used as input for execution of
	// programs and directly read or mutated by the clients.
	//
	// It returns an error if the backend doesn't support shared buffers -- see HasSharedBuffers.
	//
	// The shared buffer should not be mutated while it is used by an execution.
	// Also, the shared buffer cannot be "donated" during execution.
	//
	// When done, to release the memory, call BufferFinalize on the returned buffer.
	//
	// It returns a handle to the buffer and a slice of the corresponding data type pointing
	// to the shared data.
	NewSharedBuffer(device devices.Device, shape shapes.Shape) (buffer Buffer, flat any, err error)

	// BufferData returns a slice pointing to the buffer storage memory directly.
	//
	// This only works if HasSharedBuffers is true, that is, if the backend engine runs on CPU, or
	// shares CPU memory.
	//
	// The returned slice becomes invalid after the buffer is destroyed.
	BufferData(buffer Buffer) (flat any, err error)
}
