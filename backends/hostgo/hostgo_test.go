package hostgo

import (
	"fmt"
	"os"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/program"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/types/shapes"
)

var backend backends.Backend

func init() {
	klog.InitFlags(nil)
}

func setup() {
	fmt.Printf("Available backends: %q\n", backends.List())
	if os.Getenv(backends.ConfigEnvVar) == "" {
		must.M(os.Setenv(backends.ConfigEnvVar, BackendName+":2"))
	} else {
		fmt.Printf("\t$%s=%q\n", backends.ConfigEnvVar, os.Getenv(backends.ConfigEnvVar))
	}
	backend = backends.MustNew()
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())
}

func teardown() {
	backend.Finalize()
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	teardown()
	os.Exit(code)
}

// stackProgram builds a ProgramType program bound to no particular devices.
func stackProgram(name, text string, inputs, outputs []shapes.Shape) *program.Program {
	prog := &program.Program{
		Type: ProgramType,
		Name: name,
		Text: []byte(text),
	}
	for _, s := range inputs {
		prog.InputSpecs = append(prog.InputSpecs, program.ArraySpec{Shape: s})
	}
	for _, s := range outputs {
		prog.OutputSpecs = append(prog.OutputSpecs, program.ArraySpec{Shape: s})
	}
	return prog
}

// compile against the live test backend's target, with no client, the way an
// ahead-of-time producer would.
func compile(t *testing.T, prog *program.Program) *backends.Executable {
	t.Helper()
	target, err := backend.CaptureTarget()
	require.NoError(t, err)
	exec, err := backends.Compile(nil, prog, target, nil)
	require.NoError(t, err)
	return exec
}

// bufferOf creates a buffer on the device from the flat data.
func bufferOf(t *testing.T, device devices.Device, shape shapes.Shape, flat any) backends.Buffer {
	t.Helper()
	buffer, err := backend.BufferFromFlatData(device, flat, shape)
	require.NoError(t, err)
	return buffer
}

// flatOf reads back the buffer's flat data as a []T.
func flatOf[T any](t *testing.T, buffer backends.Buffer) []T {
	t.Helper()
	shape, err := backend.BufferShape(buffer)
	require.NoError(t, err)
	flat := make([]T, shape.Size())
	require.NoError(t, backend.BufferToFlatData(buffer, flat))
	return flat
}

func TestBackendSurface(t *testing.T) {
	require.Equal(t, BackendName, backend.Name())
	devs := backend.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, devices.ID(0), devs[0].ID())
	assert.Equal(t, devices.ID(1), devs[1].ID())
	assert.Equal(t, "host", devs[0].Kind())
	assert.Equal(t, "host:1", devs[1].String())

	dev, err := backend.LookupDevice(1)
	require.NoError(t, err)
	assert.Same(t, devs[1], dev)
	_, err = backend.LookupDevice(7)
	require.ErrorIs(t, err, devices.ErrUnresolvedDevice)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := backends.NewWithConfig(BackendName + ":many")
	require.Error(t, err)
	_, err = backends.NewWithConfig(BackendName + ":0")
	require.Error(t, err)
}

func TestCaptureTarget(t *testing.T) {
	target, err := backend.CaptureTarget()
	require.NoError(t, err)
	assert.Equal(t, BackendName, target.Platform)
	assert.Equal(t, ISA, target.ISA)
	assert.Equal(t, 2, target.NumDevices)
	assert.True(t, target.Capabilities.SupportsOp(OpNameAdd))
	assert.True(t, target.Capabilities.SupportsDType(dtypes.Float16))
	assert.False(t, target.Capabilities.SupportsDType(dtypes.BFloat16))

	// Snapshots of the same backend are interchangeable.
	again, err := backend.CaptureTarget()
	require.NoError(t, err)
	assert.True(t, target.Equal(again))
	require.NoError(t, target.Supports(again))
}

// TestAheadOfTimePipeline walks the full producer/consumer split: capture a
// target, compile without any live backend, serialize, then load and run the
// bytes on a freshly created backend.
func TestAheadOfTimePipeline(t *testing.T) {
	// Producer side.
	target := must.M1(backend.CaptureTarget())
	prog := stackProgram("const2", "const Int32 2\n", nil, []shapes.Shape{shapes.Make(dtypes.Int32)})
	exec, err := backends.Compile(nil, prog, target, nil)
	require.NoError(t, err)
	data, err := exec.Serialize()
	require.NoError(t, err)

	// Consumer side: a separate backend instance, as another process would have.
	consumer, err := backends.NewWithConfig(BackendName + ":2")
	require.NoError(t, err)
	defer consumer.Finalize()
	loaded, err := backends.LoadSerialized(consumer, data, backends.LoadOptions{})
	require.NoError(t, err)
	defer loaded.Finalize()

	require.Equal(t, "const2", loaded.Name())
	require.Len(t, loaded.Devices(), 1)
	outputs, err := loaded.Execute([][]backends.Buffer{{}}, backends.ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Len(t, outputs[0], 1)

	flat := make([]int32, 1)
	require.NoError(t, consumer.BufferToFlatData(outputs[0][0], flat))
	assert.Equal(t, int32(2), flat[0])
	require.NoError(t, consumer.BufferFinalize(outputs[0][0]))
}

func TestProgramSerDesWithBackend(t *testing.T) {
	reg := serdes.NewRegistry()
	require.NoError(t, program.RegisterSerDes(reg))

	dev0 := must.M1(backend.LookupDevice(0))
	dev1 := must.M1(backend.LookupDevice(1))
	prog := stackProgram("double", "arg 0\narg 0\nadd\n",
		[]shapes.Shape{shapes.Make(dtypes.Float32, 3)},
		[]shapes.Shape{shapes.Make(dtypes.Float32, 3)})
	prog.Devices = devices.List{dev0, dev1}

	data, err := reg.Serialize(prog)
	require.NoError(t, err)
	value, err := reg.Deserialize(program.Kind, data,
		&program.DeserializeProgramOptions{LookupDevice: backend.LookupDevice})
	require.NoError(t, err)
	restored := value.(*program.Program)
	require.True(t, prog.Equal(restored))

	// The deserialized program holds this backend's live handles.
	require.Len(t, restored.Devices, 2)
	assert.Same(t, dev0, restored.Devices[0])
	assert.Same(t, dev1, restored.Devices[1])

	// And it compiles and runs like the original.
	loaded, err := backend.Load(compile(t, restored), backends.LoadOptions{})
	require.NoError(t, err)
	defer loaded.Finalize()
	arg := bufferOf(t, dev0, shapes.Make(dtypes.Float32, 3), []float32{1, 2, 3})
	outputs, err := loaded.Execute([][]backends.Buffer{{arg}}, backends.ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4, 6}, flatOf[float32](t, outputs[0][0]))
}
