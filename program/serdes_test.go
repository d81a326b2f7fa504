package program

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/types/shapes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDevice struct {
	id    devices.ID
	label string
}

func (d *testDevice) ID() devices.ID { return d.id }
func (d *testDevice) Kind() string   { return "test" }
func (d *testDevice) String() string { return fmt.Sprintf("test:%d(%s)", d.id, d.label) }

// testClient hands out one fixed device handle per known ID, so tests can
// check that resolution produced the client's handles and not copies.
type testClient struct {
	byID map[devices.ID]*testDevice
}

func newTestClient(labels map[devices.ID]string) *testClient {
	c := &testClient{byID: make(map[devices.ID]*testDevice)}
	for id, label := range labels {
		c.byID[id] = &testDevice{id: id, label: label}
	}
	return c
}

func (c *testClient) lookup(id devices.ID) (devices.Device, error) {
	dev, found := c.byID[id]
	if !found {
		return nil, errors.Errorf("client has no device %d", id)
	}
	return dev, nil
}

func (c *testClient) options() *DeserializeProgramOptions {
	return &DeserializeProgramOptions{LookupDevice: c.lookup}
}

func newRegistry(t *testing.T) *serdes.Registry {
	reg := serdes.NewRegistry()
	require.NoError(t, RegisterSerDes(reg))
	return reg
}

func testProgram(c *testClient) *Program {
	devA := func() devices.Device { d, _ := c.lookup(0); return d }()
	devB := func() devices.Device { d, _ := c.lookup(1); return d }()
	return &Program{
		Type: "xrt.stack",
		Name: "double",
		Text: []byte("arg 0\nadd\n"),
		Devices: devices.List{
			devA, devB,
		},
		InputSpecs: []ArraySpec{
			{
				Shape: shapes.Make(dtypes.Float32, 4),
				Sharding: Sharding{
					Devices:   devices.List{devA, devB},
					DimShards: []int{2},
				},
			},
		},
		OutputSpecs: []ArraySpec{
			{Shape: shapes.Make(dtypes.Float32, 4)},
		},
	}
}

func TestProgramRoundTrip(t *testing.T) {
	client := newTestClient(map[devices.ID]string{0: "A", 1: "B"})
	reg := newRegistry(t)
	original := testProgram(client)

	data, err := reg.Serialize(original)
	require.NoError(t, err)

	value, err := reg.Deserialize(Kind, data, client.options())
	require.NoError(t, err)
	got, ok := value.(*Program)
	require.True(t, ok, "deserialized to %T", value)

	require.True(t, original.Equal(got), "round trip changed the program:\n  original: %s\n  got: %s", original, got)

	// The round-tripped value is a fresh tree, not aliases into the original.
	got.Text[0] = 'X'
	assert.Equal(t, byte('a'), original.Text[0])
}

func TestProgramDeviceResolution(t *testing.T) {
	// Device IDs {0, 1} must come back as the client's handles A and B, in
	// program order.
	client := newTestClient(map[devices.ID]string{0: "A", 1: "B"})
	reg := newRegistry(t)

	data, err := reg.Serialize(testProgram(client))
	require.NoError(t, err)

	got, err := serdes.DeserializeAs[*Program](reg, Kind, data, client.options())
	require.NoError(t, err)

	require.Len(t, got.Devices, 2)
	assert.Same(t, client.byID[0], got.Devices[0])
	assert.Same(t, client.byID[1], got.Devices[1])
	assert.Equal(t, []devices.ID{0, 1}, got.Devices.IDs())

	require.Len(t, got.InputSpecs, 1)
	assert.Same(t, client.byID[0], got.InputSpecs[0].Sharding.Devices[0])
	assert.Same(t, client.byID[1], got.InputSpecs[0].Sharding.Devices[1])
}

func TestProgramUnresolvedDevice(t *testing.T) {
	full := newTestClient(map[devices.ID]string{0: "A", 1: "B"})
	reg := newRegistry(t)
	data, err := reg.Serialize(testProgram(full))
	require.NoError(t, err)

	// A client that only knows device 0 cannot deserialize a program
	// addressing devices {0, 1}.
	partial := newTestClient(map[devices.ID]string{0: "A"})
	_, err = reg.Deserialize(Kind, data, partial.options())
	require.ErrorIs(t, err, devices.ErrUnresolvedDevice)
	assert.Contains(t, err.Error(), "device id 1")
}

func TestProgramInvalidOptions(t *testing.T) {
	client := newTestClient(map[devices.ID]string{0: "A", 1: "B"})
	reg := newRegistry(t)
	data, err := reg.Serialize(testProgram(client))
	require.NoError(t, err)

	for name, options := range map[string]serdes.Options{
		"nil":            nil,
		"wrong type":     struct{}{},
		"nil typed":      (*DeserializeProgramOptions)(nil),
		"missing lookup": &DeserializeProgramOptions{},
	} {
		_, err := reg.Deserialize(Kind, data, options)
		require.ErrorIs(t, err, serdes.ErrInvalidOptions, "options %q", name)
	}
}

func TestProgramMalformedPayload(t *testing.T) {
	client := newTestClient(map[devices.ID]string{0: "A"})
	reg := newRegistry(t)

	// A payload without a program type is rejected even if it decodes.
	_, err := reg.Deserialize(Kind, nil, client.options())
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)

	// Corrupted bytes.
	data, err := reg.Serialize(testProgram(newTestClient(map[devices.ID]string{0: "A", 1: "B"})))
	require.NoError(t, err)
	_, err = reg.Deserialize(Kind, data[:len(data)-2], client.options())
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)
}

func TestProgramWithoutDevices(t *testing.T) {
	// Programs that address no devices round trip without needing any
	// resolution, but still require the options to be well formed.
	reg := newRegistry(t)
	original := &Program{
		Type:        "xrt.stack",
		Text:        []byte("const Int32 2\n"),
		OutputSpecs: []ArraySpec{{Shape: shapes.Make(dtypes.Int32)}},
	}
	data, err := reg.Serialize(original)
	require.NoError(t, err)

	neverCalled := func(id devices.ID) (devices.Device, error) {
		t.Fatalf("resolver called for device %d", id)
		return nil, nil
	}
	got, err := serdes.DeserializeAs[*Program](reg, Kind, data,
		&DeserializeProgramOptions{LookupDevice: neverCalled})
	require.NoError(t, err)
	require.True(t, original.Equal(got))
}

func TestCompileOptionsRoundTrip(t *testing.T) {
	reg := newRegistry(t)

	data, err := reg.Serialize(&CompileOptions{})
	require.NoError(t, err)
	assert.Empty(t, data, "serialized CompileOptions must be canonically empty")

	value, err := reg.Deserialize(CompileOptionsKind, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, &CompileOptions{}, value)

	// Any non-empty payload is rejected.
	_, err = reg.Deserialize(CompileOptionsKind, []byte{1}, nil)
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)
}

func TestRegisterSerDesTwice(t *testing.T) {
	reg := serdes.NewRegistry()
	require.NoError(t, RegisterSerDes(reg))
	err := RegisterSerDes(reg)
	require.ErrorIs(t, err, serdes.ErrDuplicateKind)
}

func TestProgramClone(t *testing.T) {
	client := newTestClient(map[devices.ID]string{0: "A", 1: "B"})
	original := testProgram(client)
	clone := original.Clone()
	require.True(t, original.Equal(clone))

	clone.Text[0] = 'Z'
	clone.InputSpecs[0].Shape.Dimensions[0] = 99
	assert.Equal(t, byte('a'), original.Text[0])
	assert.Equal(t, 4, original.InputSpecs[0].Shape.Dimensions[0])
}
