// Package hostgo implements a pure-Go reference backend for xrt.
//
// Devices are virtual: slots of host memory, as many as the configuration
// asks for. Programs are the line-oriented "xrt.stack" dialect, compiled to a
// small stack-machine bytecode (see ProgramType) and interpreted at Execute
// time. It is not fast, but it runs everywhere, which makes it the backend of
// choice for tests and for exercising the ahead-of-time pipeline without an
// accelerator.
//
// Import it with import _ "github.com/gomlx/xrt/backends/hostgo" to make it
// available; it registers itself and its compiler during initialization.
package hostgo

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/targets"
)

// BackendName to be used in XRT_BACKEND to specify this backend. It is also
// the platform name in captured targets.
const BackendName = "hostgo"

// ISA tags the bytecode emitted by the compiler. Executables only load on
// targets with the same ISA.
const ISA = "stackvm-v1"

// Registers the backend constructor and its compiler.
func init() {
	backends.Register(BackendName, New)
	backends.RegisterCompiler(BackendName, &Compiler{})
}

// New constructs a new hostgo Backend.
//
// The config string is the number of virtual devices to create; empty means 1.
func New(config string) (backends.Backend, error) {
	numDevices := 1
	if config != "" {
		var err error
		numDevices, err = strconv.Atoi(config)
		if err != nil {
			return nil, errors.Wrapf(err, "backend %q: config must be the number of devices, got %q",
				BackendName, config)
		}
		if numDevices < 1 {
			return nil, errors.Errorf("backend %q: at least 1 device required, got %d",
				BackendName, numDevices)
		}
	}
	b := &Backend{}
	b.devices = make(devices.List, numDevices)
	for i := range b.devices {
		b.devices[i] = &Device{id: devices.ID(i)}
	}
	return b, nil
}

// Backend implements the backends.Backend interface over virtual host devices.
type Backend struct {
	devices devices.List

	// bufferPools is a map[bufferPoolKey]*sync.Pool of reusable buffers.
	bufferPools sync.Map

	finalized bool
}

// Compile-time check that hostgo.Backend implements backends.Backend.
var _ backends.Backend = (*Backend)(nil)

// AssertValid panics if the backend is nil or was already finalized.
func (b *Backend) AssertValid() {
	if b == nil {
		exceptions.Panicf("%q backend is nil", BackendName)
	}
	if b.finalized {
		exceptions.Panicf("%q backend was already finalized", BackendName)
	}
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return fmt.Sprintf("Host Go stack VM (%d virtual devices)", len(b.devices))
}

// Devices returns the virtual devices, ordered by ID.
func (b *Backend) Devices() devices.List {
	b.AssertValid()
	return b.devices
}

// LookupDevice resolves a device ID to this backend's handle. It is the
// resolver to pass when deserializing programs meant for this backend.
func (b *Backend) LookupDevice(id devices.ID) (devices.Device, error) {
	b.AssertValid()
	if int(id) < 0 || int(id) >= len(b.devices) {
		return nil, errors.Wrapf(devices.ErrUnresolvedDevice, "backend %q has devices 0 to %d, not %d",
			BackendName, len(b.devices)-1, id)
	}
	return b.devices[id], nil
}

// CaptureTarget snapshots this backend as a compilation target.
func (b *Backend) CaptureTarget() (*targets.Description, error) {
	b.AssertValid()
	return &targets.Description{
		Platform:     BackendName,
		ISA:          ISA,
		NumDevices:   len(b.devices),
		Capabilities: Capabilities.Clone(),
		Attributes: map[string]string{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		},
	}, nil
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	if b == nil || b.finalized {
		return
	}
	b.finalized = true
	b.devices = nil
	b.bufferPools = sync.Map{}
}

// Device is a virtual host device. All devices of a backend share the host's
// memory, they only differ by ID.
type Device struct {
	id devices.ID
}

var _ devices.Device = (*Device)(nil)

// ID returns the device's logical identifier.
func (d *Device) ID() devices.ID { return d.id }

// Kind names the device class.
func (d *Device) Kind() string { return "host" }

// String implements stringer.
func (d *Device) String() string { return fmt.Sprintf("host:%d", d.id) }
