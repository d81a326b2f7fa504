// Package program defines the portable representation of a program handed to
// a compiler: an opaque program text, the devices it is meant to run on, and
// the specs of its inputs and outputs.
//
// In memory a Program holds live device handles. On the wire it holds only
// device IDs, so deserializing one requires a device resolver (see
// DeserializeProgramOptions). The package registers its SerDes through
// RegisterSerDes, called explicitly at composition time.
package program

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/types/shapes"
)

// Sharding describes how one array is laid out across devices. An empty
// DimShards means the array is fully replicated on Devices.
type Sharding struct {
	// Devices the array lives on.
	Devices devices.List

	// DimShards is the number of shards per axis, len equal to the array's
	// rank when set.
	DimShards []int
}

// Equal reports whether both shardings use the same device IDs and shard
// counts.
func (s Sharding) Equal(other Sharding) bool {
	return s.Devices.Equal(other.Devices) && slices.Equal(s.DimShards, other.DimShards)
}

// Clone returns a deep copy. Device handles are shared, they are owned by the
// backend.
func (s Sharding) Clone() Sharding {
	return Sharding{
		Devices:   slices.Clone(s.Devices),
		DimShards: slices.Clone(s.DimShards),
	}
}

// ArraySpec describes one input or output of a program: its shape and its
// sharding across devices.
type ArraySpec struct {
	Shape    shapes.Shape
	Sharding Sharding
}

// Equal reports whether both specs describe the same shape and sharding.
func (a ArraySpec) Equal(other ArraySpec) bool {
	return a.Shape.Equal(other.Shape) && a.Sharding.Equal(other.Sharding)
}

// Clone returns a deep copy.
func (a ArraySpec) Clone() ArraySpec {
	return ArraySpec{Shape: a.Shape.Clone(), Sharding: a.Sharding.Clone()}
}

// Program is a program to be compiled, together with the context a compiler
// needs: target devices and input/output array specs.
type Program struct {
	// Type names the dialect of Text, e.g. "xrt.stack". Compilers reject
	// types they do not understand.
	Type string

	// Name is a human-readable label carried through compilation into the
	// executable. Optional.
	Name string

	// Text is the program itself, opaque at this layer.
	Text []byte

	// Devices the program addresses. Replica i runs on Devices[i].
	Devices devices.List

	// InputSpecs and OutputSpecs describe the per-replica arguments and
	// results.
	InputSpecs  []ArraySpec
	OutputSpecs []ArraySpec
}

// SerDesKind implements serdes.Serializable.
func (p *Program) SerDesKind() serdes.Kind { return Kind }

// Equal reports whether both programs are equal field by field; devices are
// compared by ID.
func (p *Program) Equal(other *Program) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Type != other.Type || p.Name != other.Name || !bytes.Equal(p.Text, other.Text) {
		return false
	}
	if !p.Devices.Equal(other.Devices) {
		return false
	}
	return specsEqual(p.InputSpecs, other.InputSpecs) &&
		specsEqual(p.OutputSpecs, other.OutputSpecs)
}

func specsEqual(a, b []ArraySpec) bool {
	return slices.EqualFunc(a, b, ArraySpec.Equal)
}

// Clone returns a deep copy of the program. Device handles are shared.
func (p *Program) Clone() *Program {
	clone := &Program{
		Type:        p.Type,
		Name:        p.Name,
		Text:        bytes.Clone(p.Text),
		Devices:     slices.Clone(p.Devices),
		InputSpecs:  make([]ArraySpec, 0, len(p.InputSpecs)),
		OutputSpecs: make([]ArraySpec, 0, len(p.OutputSpecs)),
	}
	for _, spec := range p.InputSpecs {
		clone.InputSpecs = append(clone.InputSpecs, spec.Clone())
	}
	for _, spec := range p.OutputSpecs {
		clone.OutputSpecs = append(clone.OutputSpecs, spec.Clone())
	}
	return clone
}

// String implements stringer, a compact description for logs.
func (p *Program) String() string {
	name := p.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("Program{type=%q, name=%q, %d bytes, devices=%v, %d inputs, %d outputs}",
		p.Type, name, len(p.Text), p.Devices.IDs(), len(p.InputSpecs), len(p.OutputSpecs))
}
