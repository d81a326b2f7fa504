// Package devices defines handles for the addressable devices of a backend.
//
// A Device is always a live handle owned by the backend that created it:
// serialized artifacts never carry device handles, only device IDs, which are
// resolved back to handles at deserialization time through a Resolver. A
// resolved List therefore never contains an unresolved entry.
package devices

import (
	"strings"

	"github.com/gomlx/xrt/internal/wire"
	"github.com/pkg/errors"
)

// ID is the stable logical identifier of a device within its backend. IDs are
// what serialized programs and executables reference.
type ID int32

// Device is a live handle to one addressable device.
type Device interface {
	// ID returns the device's logical identifier.
	ID() ID

	// Kind names the device class, e.g. "host".
	Kind() string

	// String returns a short human-readable description, e.g. "host:0".
	String() string
}

// Resolver resolves a device ID to a live handle. Backends provide one (see
// the backend's LookupDevice); deserialization of device-bearing values
// requires it.
type Resolver func(id ID) (Device, error)

// ErrUnresolvedDevice: a device ID could not be resolved to a live device.
var ErrUnresolvedDevice = errors.New("device id cannot be resolved")

// List is an ordered list of resolved devices. Order is meaningful: replica i
// of an executable runs on the i-th device of its list.
type List []Device

// IDs returns the IDs of the devices, in list order.
func (l List) IDs() []ID {
	ids := make([]ID, len(l))
	for i, dev := range l {
		ids[i] = dev.ID()
	}
	return ids
}

// Find returns the first device with the given ID.
func (l List) Find(id ID) (Device, bool) {
	for _, dev := range l {
		if dev.ID() == id {
			return dev, true
		}
	}
	return nil, false
}

// Equal reports whether both lists hold the same device IDs in the same order.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	for i, dev := range l {
		if dev.ID() != other[i].ID() {
			return false
		}
	}
	return true
}

// String implements stringer.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, dev := range l {
		parts[i] = dev.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

const wireFieldIDs wire.Number = 1

// AppendWire appends the list encoded in wire format to b. Only the device
// IDs are encoded.
func (l List) AppendWire(b []byte) []byte {
	return wire.AppendPackedField(b, wireFieldIDs, l.IDs())
}

// FromWire decodes a List encoded with AppendWire, resolving every ID through
// resolve. Any ID that fails to resolve makes the whole decode fail with
// ErrUnresolvedDevice: a partially resolved list is never returned.
func FromWire(data []byte, resolve Resolver) (List, error) {
	if resolve == nil {
		return nil, errors.New("decoding device list: no device resolver provided")
	}
	var ids []ID
	d := wire.NewDecoder(data)
	for d.Next() {
		if d.FieldNum() == wireFieldIDs {
			for _, id := range d.PackedInt32s() {
				ids = append(ids, ID(id))
			}
		}
	}
	if err := d.Err(); err != nil {
		return nil, errors.WithMessage(err, "decoding device list")
	}
	list := make(List, 0, len(ids))
	for _, id := range ids {
		dev, err := resolve(id)
		if err != nil {
			return nil, errors.Wrapf(ErrUnresolvedDevice, "device id %d: %v", id, err)
		}
		if dev == nil {
			return nil, errors.Wrapf(ErrUnresolvedDevice, "device id %d: resolver returned no device", id)
		}
		list = append(list, dev)
	}
	return list, nil
}
