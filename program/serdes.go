package program

import (
	"github.com/gomlx/xrt/devices"
	"github.com/gomlx/xrt/internal/wire"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/types/shapes"
	"github.com/pkg/errors"
)

// Kinds served by this package. They are stored next to serialized payloads
// and must not change.
const (
	// Kind identifies serialized Programs.
	Kind serdes.Kind = "xrt.Program"

	// CompileOptionsKind identifies serialized CompileOptions.
	CompileOptionsKind serdes.Kind = "xrt.CompileOptions"
)

// DeserializeProgramOptions is the serdes.Options type required to
// deserialize a Program: every device ID in the payload is resolved to a live
// handle through LookupDevice, and deserialization fails if any ID does not
// resolve.
type DeserializeProgramOptions struct {
	LookupDevice devices.Resolver
}

// RegisterSerDes registers the Program and CompileOptions SerDes on reg. Call
// it at composition time on every registry that moves programs between
// processes.
func RegisterSerDes(reg *serdes.Registry) error {
	if err := reg.Register(programSerDes{}); err != nil {
		return err
	}
	return reg.Register(newCompileOptionsSerDes())
}

// Field numbers of the encoded Program message.
const (
	progFieldType    wire.Number = 1
	progFieldName    wire.Number = 2
	progFieldText    wire.Number = 3
	progFieldDevices wire.Number = 4
	progFieldInputs  wire.Number = 5
	progFieldOutputs wire.Number = 6
)

// Field numbers of the encoded ArraySpec message.
const (
	specFieldShape    wire.Number = 1
	specFieldSharding wire.Number = 2
)

// Field numbers of the encoded Sharding message.
const (
	shardingFieldDevices   wire.Number = 1
	shardingFieldDimShards wire.Number = 2
)

type programSerDes struct{}

func (programSerDes) Kind() serdes.Kind { return Kind }

func (programSerDes) Serialize(value serdes.Serializable) ([]byte, error) {
	p, ok := value.(*Program)
	if !ok {
		return nil, errors.Errorf("expected *program.Program, got %T", value)
	}
	if p.Type == "" {
		return nil, errors.New("program has no type, refusing to serialize")
	}
	var b []byte
	b = wire.AppendStringField(b, progFieldType, p.Type)
	b = wire.AppendStringField(b, progFieldName, p.Name)
	b = wire.AppendBytesField(b, progFieldText, p.Text)
	if len(p.Devices) > 0 {
		b = wire.AppendMessageField(b, progFieldDevices, p.Devices.AppendWire(nil))
	}
	for _, spec := range p.InputSpecs {
		b = wire.AppendMessageField(b, progFieldInputs, appendArraySpec(nil, spec))
	}
	for _, spec := range p.OutputSpecs {
		b = wire.AppendMessageField(b, progFieldOutputs, appendArraySpec(nil, spec))
	}
	return b, nil
}

func (programSerDes) Deserialize(data []byte, options serdes.Options) (serdes.Serializable, error) {
	opts, ok := options.(*DeserializeProgramOptions)
	if !ok || opts == nil {
		return nil, errors.Wrapf(serdes.ErrInvalidOptions,
			"expected *program.DeserializeProgramOptions, got %T", options)
	}
	if opts.LookupDevice == nil {
		return nil, errors.Wrap(serdes.ErrInvalidOptions,
			"DeserializeProgramOptions.LookupDevice is required")
	}

	p := &Program{}
	d := wire.NewDecoder(data)
	for d.Next() {
		switch d.FieldNum() {
		case progFieldType:
			p.Type = d.String()
		case progFieldName:
			p.Name = d.String()
		case progFieldText:
			p.Text = d.Bytes()
		case progFieldDevices:
			list, err := devices.FromWire(d.Message(), opts.LookupDevice)
			if err != nil {
				if errors.Is(err, devices.ErrUnresolvedDevice) {
					return nil, err
				}
				return nil, errors.Wrapf(serdes.ErrMalformedPayload, "program devices: %v", err)
			}
			p.Devices = list
		case progFieldInputs:
			spec, err := arraySpecFromWire(d.Message(), opts.LookupDevice)
			if err != nil {
				return nil, errors.WithMessage(err, "program input spec")
			}
			p.InputSpecs = append(p.InputSpecs, spec)
		case progFieldOutputs:
			spec, err := arraySpecFromWire(d.Message(), opts.LookupDevice)
			if err != nil {
				return nil, errors.WithMessage(err, "program output spec")
			}
			p.OutputSpecs = append(p.OutputSpecs, spec)
		}
	}
	if err := d.Err(); err != nil {
		return nil, errors.Wrapf(serdes.ErrMalformedPayload, "program: %v", err)
	}
	if p.Type == "" {
		return nil, errors.Wrap(serdes.ErrMalformedPayload, "program has no type")
	}
	return p, nil
}

func appendArraySpec(b []byte, spec ArraySpec) []byte {
	b = wire.AppendMessageField(b, specFieldShape, spec.Shape.AppendWire(nil))
	var sharding []byte
	if len(spec.Sharding.Devices) > 0 {
		sharding = wire.AppendMessageField(sharding, shardingFieldDevices, spec.Sharding.Devices.AppendWire(nil))
	}
	sharding = wire.AppendPackedField(sharding, shardingFieldDimShards, spec.Sharding.DimShards)
	if len(sharding) > 0 {
		b = wire.AppendMessageField(b, specFieldSharding, sharding)
	}
	return b
}

func arraySpecFromWire(data []byte, resolve devices.Resolver) (spec ArraySpec, err error) {
	d := wire.NewDecoder(data)
	for d.Next() {
		switch d.FieldNum() {
		case specFieldShape:
			spec.Shape, err = shapes.FromWire(d.Message())
			if err != nil {
				return spec, errors.Wrapf(serdes.ErrMalformedPayload, "%v", err)
			}
		case specFieldSharding:
			spec.Sharding, err = shardingFromWire(d.Message(), resolve)
			if err != nil {
				return spec, err
			}
		}
	}
	if err = d.Err(); err != nil {
		return spec, errors.Wrapf(serdes.ErrMalformedPayload, "%v", err)
	}
	if !spec.Shape.Ok() {
		return spec, errors.Wrap(serdes.ErrMalformedPayload, "array spec has no shape")
	}
	return spec, nil
}

func shardingFromWire(data []byte, resolve devices.Resolver) (sharding Sharding, err error) {
	d := wire.NewDecoder(data)
	for d.Next() {
		switch d.FieldNum() {
		case shardingFieldDevices:
			sharding.Devices, err = devices.FromWire(d.Message(), resolve)
			if err != nil {
				if errors.Is(err, devices.ErrUnresolvedDevice) {
					return sharding, err
				}
				return sharding, errors.Wrapf(serdes.ErrMalformedPayload, "sharding devices: %v", err)
			}
		case shardingFieldDimShards:
			sharding.DimShards = d.PackedInts()
		}
	}
	if err = d.Err(); err != nil {
		return sharding, errors.Wrapf(serdes.ErrMalformedPayload, "sharding: %v", err)
	}
	return sharding, nil
}

// CompileOptions selects compilation behavior.
//
// There are no tunables yet: everything that affects how an executable is
// bound to devices (replica count, device assignment) belongs to load time.
// The canonical serialized form is the empty payload, and deserialization
// rejects anything else, so adding options later remains detectable.
type CompileOptions struct{}

// SerDesKind implements serdes.Serializable.
func (o *CompileOptions) SerDesKind() serdes.Kind { return CompileOptionsKind }

func newCompileOptionsSerDes() serdes.SerDes {
	return serdes.New(CompileOptionsKind,
		func(value serdes.Serializable) ([]byte, error) {
			if _, ok := value.(*CompileOptions); !ok {
				return nil, errors.Errorf("expected *program.CompileOptions, got %T", value)
			}
			return nil, nil
		},
		func(data []byte, options serdes.Options) (serdes.Serializable, error) {
			if len(data) != 0 {
				return nil, errors.Wrapf(serdes.ErrMalformedPayload,
					"serialized CompileOptions must be empty, got %d bytes", len(data))
			}
			return &CompileOptions{}, nil
		})
}
