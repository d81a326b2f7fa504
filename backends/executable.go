package backends

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/gomlx/xrt/internal/wire"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/targets"
	"github.com/gomlx/xrt/types/shapes"
)

// Executable is a compiled program, not yet bound to any device. It is pure
// data: it can be serialized, moved to another process or machine, and loaded
// there on a backend whose target satisfies the one it was compiled for.
//
// Executables are immutable after construction.
type Executable struct {
	name         string
	target       *targets.Description
	fingerprint  []byte
	inputShapes  []shapes.Shape
	outputShapes []shapes.Shape
	code         []byte
}

// NewExecutable assembles a compiled artifact. Compilers call this at the end
// of a successful compilation; everything is deep-copied, so the executable
// does not alias the compiler's state.
func NewExecutable(name string, target *targets.Description,
	inputShapes, outputShapes []shapes.Shape, code []byte) (*Executable, error) {
	if target == nil {
		return nil, errors.New("executable needs the target it was compiled for")
	}
	if target.Platform == "" {
		return nil, errors.New("executable target has no platform")
	}
	fingerprint, err := target.Fingerprint()
	if err != nil {
		return nil, err
	}
	return &Executable{
		name:         name,
		target:       target.Clone(),
		fingerprint:  fingerprint,
		inputShapes:  cloneShapes(inputShapes),
		outputShapes: cloneShapes(outputShapes),
		code:         bytes.Clone(code),
	}, nil
}

func cloneShapes(in []shapes.Shape) []shapes.Shape {
	out := make([]shapes.Shape, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Name returns the human-readable label carried from the program.
func (e *Executable) Name() string { return e.name }

// Platform returns the name of the backend kind that compiled the executable.
func (e *Executable) Platform() string { return e.target.Platform }

// Target returns the target description the executable was compiled for.
// Treat it as read-only.
func (e *Executable) Target() *targets.Description { return e.target }

// Fingerprint returns the digest of the compiled-for target.
func (e *Executable) Fingerprint() []byte { return bytes.Clone(e.fingerprint) }

// InputShapes returns the per-replica argument shapes, in order.
func (e *Executable) InputShapes() []shapes.Shape { return cloneShapes(e.inputShapes) }

// OutputShapes returns the per-replica result shapes, in order.
func (e *Executable) OutputShapes() []shapes.Shape { return cloneShapes(e.outputShapes) }

// Code returns the backend-specific compiled code. Treat it as read-only.
func (e *Executable) Code() []byte { return e.code }

// String implements stringer.
func (e *Executable) String() string {
	name := e.name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("Executable{%q for %s, %d inputs, %d outputs, %d bytes of code}",
		name, e.target.Platform, len(e.inputShapes), len(e.outputShapes), len(e.code))
}

// Serialized executable format: 4 bytes magic, 1 byte format version, then a
// wire-encoded message. The embedded target snapshot is self-describing and
// its fingerprint is stored alongside, so corruption is detected on load.
const (
	executableMagic   = "XRTE"
	executableVersion = 1
)

const (
	execFieldName        wire.Number = 1
	execFieldTarget      wire.Number = 2
	execFieldFingerprint wire.Number = 3
	execFieldInputs      wire.Number = 4
	execFieldOutputs     wire.Number = 5
	execFieldCode        wire.Number = 6
)

// Serialize encodes the executable to its portable form. The encoding is
// deterministic: compiling the same program against the same target twice
// yields byte-identical artifacts.
func (e *Executable) Serialize() ([]byte, error) {
	targetData, err := e.target.Serialize()
	if err != nil {
		return nil, err
	}
	var b []byte
	b = append(b, executableMagic...)
	b = append(b, executableVersion)
	b = wire.AppendStringField(b, execFieldName, e.name)
	b = wire.AppendMessageField(b, execFieldTarget, targetData)
	b = wire.AppendBytesField(b, execFieldFingerprint, e.fingerprint)
	for _, s := range e.inputShapes {
		b = wire.AppendMessageField(b, execFieldInputs, s.AppendWire(nil))
	}
	for _, s := range e.outputShapes {
		b = wire.AppendMessageField(b, execFieldOutputs, s.AppendWire(nil))
	}
	b = wire.AppendBytesField(b, execFieldCode, e.code)
	return b, nil
}

func malformedExecutable(format string, args ...any) error {
	return errors.Wrapf(serdes.ErrMalformedPayload, "serialized executable: "+format, args...)
}

// ParseExecutable decodes an executable produced by Serialize, by this or an
// older release. The embedded target snapshot is checked against the stored
// fingerprint, so a corrupted or hand-edited artifact is rejected here rather
// than misbehaving at load time.
func ParseExecutable(data []byte) (*Executable, error) {
	if len(data) < len(executableMagic)+1 || string(data[:len(executableMagic)]) != executableMagic {
		return nil, malformedExecutable("bad magic")
	}
	version := data[len(executableMagic)]
	if version == 0 || version > executableVersion {
		return nil, malformedExecutable("format version %d not supported (latest is %d)",
			version, executableVersion)
	}

	var (
		name                      string
		target                    *targets.Description
		fingerprint               []byte
		inputShapes, outputShapes []shapes.Shape
		code                      []byte
	)
	d := wire.NewDecoder(data[len(executableMagic)+1:])
	for d.Next() {
		switch d.FieldNum() {
		case execFieldName:
			name = d.String()
		case execFieldTarget:
			var err error
			target, err = targets.ParseDescription(d.Message())
			if err != nil {
				return nil, malformedExecutable("target: %v", err)
			}
		case execFieldFingerprint:
			fingerprint = d.Bytes()
		case execFieldInputs:
			s, err := shapes.FromWire(d.Message())
			if err != nil {
				return nil, malformedExecutable("input shape: %v", err)
			}
			inputShapes = append(inputShapes, s)
		case execFieldOutputs:
			s, err := shapes.FromWire(d.Message())
			if err != nil {
				return nil, malformedExecutable("output shape: %v", err)
			}
			outputShapes = append(outputShapes, s)
		case execFieldCode:
			code = d.Bytes()
		}
	}
	if err := d.Err(); err != nil {
		return nil, malformedExecutable("%v", err)
	}
	if target == nil {
		return nil, malformedExecutable("no target description")
	}

	exec, err := NewExecutable(name, target, inputShapes, outputShapes, code)
	if err != nil {
		return nil, malformedExecutable("%v", err)
	}
	if !bytes.Equal(exec.fingerprint, fingerprint) {
		return nil, malformedExecutable("target fingerprint mismatch, artifact corrupted?")
	}
	return exec, nil
}

// LoadSerialized parses a serialized executable and loads it on backend. This
// is the whole ahead-of-time path on the consuming side: bytes in, runnable
// executable out.
func LoadSerialized(backend Backend, data []byte, options LoadOptions) (LoadedExecutable, error) {
	exec, err := ParseExecutable(data)
	if err != nil {
		return nil, err
	}
	return backend.Load(exec, options)
}
