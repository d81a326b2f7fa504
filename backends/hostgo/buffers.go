package hostgo

import (
	"reflect"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/types/shapes"
)

// Compile-time check:
var _ backends.DataInterface = (*Backend)(nil)

// Buffer for the hostgo backend holds a shape, the device it notionally lives
// on, and the flat data.
type Buffer struct {
	shape  shapes.Shape
	device devices.Device
	valid  bool

	// flat is always a slice of the Go type corresponding to shape.DType.
	flat any
}

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

// getBufferPool for given dtype/length.
func (b *Backend) getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() interface{} {
				return &Buffer{
					flat:  reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
					shape: shapes.Make(dtype, length),
				}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from the backend pool of buffers.
func (b *Backend) getBuffer(dtype dtypes.DType, length int) *Buffer {
	pool := b.getBufferPool(dtype, length)
	buf := pool.Get().(*Buffer)
	buf.valid = true
	return buf
}

// putBuffer back into the backend pool of buffers.
// After this any references to buffer should be dropped.
func (b *Backend) putBuffer(buffer *Buffer) {
	if buffer == nil || !buffer.shape.Ok() || !buffer.valid {
		return
	}
	buffer.valid = false
	buffer.device = nil
	pool := b.getBufferPool(buffer.shape.DType, buffer.shape.Size())
	pool.Put(buffer)
}

// newBuffer allocates a buffer for the shape on the device, flat space included.
func (b *Backend) newBuffer(device devices.Device, shape shapes.Shape) *Buffer {
	buffer := b.getBuffer(shape.DType, shape.Size())
	buffer.shape = shape.Clone()
	buffer.device = device
	return buffer
}

// cloneBuffer using the pool to allocate the copy.
func (b *Backend) cloneBuffer(buffer *Buffer) *Buffer {
	clone := b.newBuffer(buffer.device, buffer.shape)
	copyFlat(clone.flat, buffer.flat)
	return clone
}

// copyFlat assumes both flat slices are of the same underlying type.
func copyFlat(flatDst, flatSrc any) {
	reflect.Copy(reflect.ValueOf(flatDst), reflect.ValueOf(flatSrc))
}

// castBuffer checks buffer is a live hostgo buffer.
func castBuffer(buffer backends.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok || buf == nil {
		return nil, errors.Errorf("buffer is not a %q backend buffer", BackendName)
	}
	if !buf.valid {
		return nil, errors.Errorf("%q buffer was already finalized", BackendName)
	}
	return buf, nil
}

// checkDevice verifies device is one of this backend's handles.
func (b *Backend) checkDevice(device devices.Device) error {
	if device == nil {
		return errors.Errorf("backend %q: nil device", BackendName)
	}
	if found, ok := b.devices.Find(device.ID()); !ok || found != device {
		return errors.Errorf("backend %q does not own device %s", BackendName, device)
	}
	return nil
}

// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
// freed immediately.
//
// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
func (b *Backend) BufferFinalize(buffer backends.Buffer) error {
	b.AssertValid()
	buf, err := castBuffer(buffer)
	if err != nil {
		return err
	}
	b.putBuffer(buf)
	return nil
}

// BufferShape returns the shape for the buffer.
func (b *Backend) BufferShape(buffer backends.Buffer) (shapes.Shape, error) {
	buf, err := castBuffer(buffer)
	if err != nil {
		return shapes.Invalid(), err
	}
	return buf.shape, nil
}

// BufferDevice returns the device holding the buffer.
func (b *Backend) BufferDevice(buffer backends.Buffer) (devices.Device, error) {
	buf, err := castBuffer(buffer)
	if err != nil {
		return nil, err
	}
	return buf.device, nil
}

// BufferToFlatData transfers the flat values of the buffer to the Go flat array.
// The slice flat must have the exact number of elements required to store the Buffer shape.
//
// See also BufferFromFlatData, BufferShape, and shapes.Shape.Size.
func (b *Backend) BufferToFlatData(buffer backends.Buffer, flat any) error {
	buf, err := castBuffer(buffer)
	if err != nil {
		return err
	}
	if err := checkFlat(flat, buf.shape); err != nil {
		return err
	}
	copyFlat(flat, buf.flat)
	return nil
}

// BufferFromFlatData transfers data from Go given as a flat slice (of the type corresponding to the shape DType)
// to the device, and returns the corresponding Buffer.
func (b *Backend) BufferFromFlatData(device devices.Device, flat any, shape shapes.Shape) (backends.Buffer, error) {
	b.AssertValid()
	if err := b.checkDevice(device); err != nil {
		return nil, err
	}
	if err := checkFlat(flat, shape); err != nil {
		return nil, err
	}
	buffer := b.newBuffer(device, shape)
	copyFlat(buffer.flat, flat)
	return buffer, nil
}

// checkFlat verifies flat is a slice of the Go type and length the shape requires.
func checkFlat(flat any, shape shapes.Shape) error {
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		return errors.Errorf("flat data must be a slice, got %T", flat)
	}
	if dtypes.FromGoType(flatV.Type().Elem()) != shape.DType {
		return errors.Errorf("flat data type (%s) does not match shape DType (%s)",
			flatV.Type().Elem(), shape.DType)
	}
	if flatV.Len() != shape.Size() {
		return errors.Errorf("flat data has %d elements, shape %s requires %d",
			flatV.Len(), shape, shape.Size())
	}
	return nil
}

// HasSharedBuffers returns whether the backend supports "shared buffers": these are buffers
// that can be used directly by the engine and has a local address that can be read or mutated
// directly by the client.
func (b *Backend) HasSharedBuffers() bool {
	return true
}

// NewSharedBuffer returns a "shared buffer" that can be both used as input for execution of
// programs and directly read or mutated by the clients.
//
// The shared buffer should not be mutated while it is used by an execution.
//
// When done, to release the memory, call BufferFinalize on the returned buffer.
//
// It returns a handle to the buffer and a slice of the corresponding data type pointing
// to the shared data.
func (b *Backend) NewSharedBuffer(device devices.Device, shape shapes.Shape) (buffer backends.Buffer, flat any, err error) {
	b.AssertValid()
	if err := b.checkDevice(device); err != nil {
		return nil, nil, err
	}
	goBuffer := b.newBuffer(device, shape)
	return goBuffer, goBuffer.flat, nil
}

// BufferData returns a slice pointing to the buffer storage memory directly.
//
// The returned slice becomes invalid after the buffer is finalized.
func (b *Backend) BufferData(buffer backends.Buffer) (flat any, err error) {
	buf, err := castBuffer(buffer)
	if err != nil {
		return nil, err
	}
	return buf.flat, nil
}
