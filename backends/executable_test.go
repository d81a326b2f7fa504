package backends

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/xrt/internal/wire"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/targets"
	"github.com/gomlx/xrt/types/shapes"
)

func testTarget() *targets.Description {
	return &targets.Description{
		Platform:   "stub",
		ISA:        "stub-v1",
		NumDevices: 2,
		Capabilities: targets.Capabilities{
			Operations: map[string]bool{"const": true, "add": true},
			DTypes:     map[dtypes.DType]bool{dtypes.Int32: true, dtypes.Float32: true},
		},
	}
}

func testExecutable(t *testing.T) *Executable {
	exec, err := NewExecutable("double", testTarget(),
		[]shapes.Shape{shapes.Make(dtypes.Float32, 4)},
		[]shapes.Shape{shapes.Make(dtypes.Float32, 4)},
		[]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	return exec
}

func TestExecutableRoundTrip(t *testing.T) {
	original := testExecutable(t)
	data, err := original.Serialize()
	require.NoError(t, err)

	got, err := ParseExecutable(data)
	require.NoError(t, err)
	assert.Equal(t, "double", got.Name())
	assert.Equal(t, "stub", got.Platform())
	assert.True(t, original.Target().Equal(got.Target()))
	assert.Equal(t, original.Fingerprint(), got.Fingerprint())
	require.Len(t, got.InputShapes(), 1)
	assert.True(t, got.InputShapes()[0].Equal(shapes.Make(dtypes.Float32, 4)))
	require.Len(t, got.OutputShapes(), 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.Code())
}

func TestSerializeDeterministic(t *testing.T) {
	a, err := testExecutable(t).Serialize()
	require.NoError(t, err)
	b, err := testExecutable(t).Serialize()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseExecutableRejects(t *testing.T) {
	data, err := testExecutable(t).Serialize()
	require.NoError(t, err)

	_, err = ParseExecutable(nil)
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)

	_, err = ParseExecutable([]byte("JUNKJUNKJUNK"))
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)

	future := append([]byte(nil), data...)
	future[4] = 99
	_, err = ParseExecutable(future)
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)
	assert.Contains(t, err.Error(), "version 99")

	_, err = ParseExecutable(data[:len(data)-1])
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)

	// Flip a byte inside the embedded target: either it no longer decodes or
	// it no longer matches the stored fingerprint. Both are rejected.
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)/2] ^= 0xFF
	_, err = ParseExecutable(corrupted)
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)
}

func TestParseExecutableFingerprintMismatch(t *testing.T) {
	// Hand-build an envelope whose stored fingerprint does not match the
	// embedded target.
	targetData, err := testTarget().Serialize()
	require.NoError(t, err)

	var b []byte
	b = append(b, executableMagic...)
	b = append(b, executableVersion)
	b = wire.AppendStringField(b, execFieldName, "tampered")
	b = wire.AppendMessageField(b, execFieldTarget, targetData)
	b = wire.AppendBytesField(b, execFieldFingerprint, make([]byte, 32))
	b = wire.AppendBytesField(b, execFieldCode, []byte{1})

	_, err = ParseExecutable(b)
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)
	assert.Contains(t, err.Error(), "fingerprint mismatch")
}

func TestExecutableImmutable(t *testing.T) {
	exec := testExecutable(t)

	inputs := exec.InputShapes()
	inputs[0].Dimensions[0] = 99
	assert.Equal(t, 4, exec.InputShapes()[0].Dimensions[0])

	fp := exec.Fingerprint()
	fp[0] ^= 0xFF
	assert.NotEqual(t, fp[0], exec.Fingerprint()[0])
}

func TestNewExecutableValidation(t *testing.T) {
	_, err := NewExecutable("x", nil, nil, nil, nil)
	require.ErrorContains(t, err, "needs the target")

	_, err = NewExecutable("x", &targets.Description{}, nil, nil, nil)
	require.ErrorContains(t, err, "no platform")
}

func TestLoadSerializedRejectsGarbage(t *testing.T) {
	backend := &stubBackend{name: "stub"}
	_, err := LoadSerialized(backend, []byte("not an executable"), LoadOptions{})
	require.ErrorIs(t, err, serdes.ErrMalformedPayload)
}
