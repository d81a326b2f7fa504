// Package targets describes compilation targets.
//
// A Description is a pure-data snapshot of a backend's device topology and
// capabilities, captured once from a live backend and then usable anywhere:
// in particular on machines that do not have such a backend, which is what
// makes ahead-of-time compilation possible. Snapshots serialize to a stable
// canonical form, so a description has a reproducible fingerprint.
package targets

import (
	"crypto/sha256"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// FileExtension is the conventional extension of target snapshot files.
const FileExtension = ".xtd"

// Capabilities enumerates what a target can execute. An entry that is absent
// or false is not supported.
type Capabilities struct {
	// Operations supported, by name.
	Operations map[string]bool `cbor:"operations"`

	// DTypes supported, keyed by the dtype's stable numeric value.
	DTypes map[dtypes.DType]bool `cbor:"dtypes"`
}

// SupportsOp returns whether the operation is supported.
func (c Capabilities) SupportsOp(op string) bool { return c.Operations[op] }

// SupportsDType returns whether the dtype is supported.
func (c Capabilities) SupportsDType(dtype dtypes.DType) bool { return c.DTypes[dtype] }

// Clone returns a deep copy.
func (c Capabilities) Clone() Capabilities {
	return Capabilities{
		Operations: maps.Clone(c.Operations),
		DTypes:     maps.Clone(c.DTypes),
	}
}

// Missing returns a sorted description of every capability required that c
// does not have. Empty means required is fully covered.
func (c Capabilities) Missing(required Capabilities) []string {
	var missing []string
	for op, wanted := range required.Operations {
		if wanted && !c.SupportsOp(op) {
			missing = append(missing, "op "+op)
		}
	}
	for dtype, wanted := range required.DTypes {
		if wanted && !c.SupportsDType(dtype) {
			missing = append(missing, "dtype "+dtype.String())
		}
	}
	slices.Sort(missing)
	return missing
}

// normalized returns a copy with false entries dropped, so that two
// semantically equal capability sets encode to the same bytes.
func (c Capabilities) normalized() Capabilities {
	n := Capabilities{}
	for op, ok := range c.Operations {
		if ok {
			if n.Operations == nil {
				n.Operations = make(map[string]bool)
			}
			n.Operations[op] = true
		}
	}
	for dtype, ok := range c.DTypes {
		if ok {
			if n.DTypes == nil {
				n.DTypes = make(map[dtypes.DType]bool)
			}
			n.DTypes[dtype] = true
		}
	}
	return n
}

// Description is the pure-data snapshot of a compilation target. Once
// captured it is immutable: nothing in it refers back to the backend it was
// captured from.
type Description struct {
	// Platform is the backend name the snapshot was captured from, e.g.
	// "hostgo". Executables only load on the platform that compiled them.
	Platform string `cbor:"platform"`

	// ISA tags the instruction encoding of compiled artifacts, e.g.
	// "stackvm-v1". Loading requires an exact match.
	ISA string `cbor:"isa"`

	// NumDevices is the number of addressable devices of the target.
	NumDevices int `cbor:"num_devices"`

	// MemoryPerDevice is the usable memory of each device, in bytes. Zero
	// means unknown.
	MemoryPerDevice uint64 `cbor:"memory_per_device"`

	// Capabilities the target supports.
	Capabilities Capabilities `cbor:"capabilities"`

	// Attributes carries free-form platform details, e.g. a version string.
	Attributes map[string]string `cbor:"attributes,omitempty"`
}

// Clone returns a deep copy.
func (d *Description) Clone() *Description {
	clone := *d
	clone.Capabilities = d.Capabilities.Clone()
	clone.Attributes = maps.Clone(d.Attributes)
	return &clone
}

// String implements stringer.
func (d *Description) String() string {
	mem := "unknown memory"
	if d.MemoryPerDevice > 0 {
		mem = humanize.IBytes(d.MemoryPerDevice) + "/device"
	}
	return fmt.Sprintf("%s (%s): %d devices, %s, %d ops, %d dtypes",
		d.Platform, d.ISA, d.NumDevices, mem,
		len(d.Capabilities.normalized().Operations), len(d.Capabilities.normalized().DTypes))
}

// Snapshot format: 4 bytes magic, 1 byte format version, then the body in
// canonical CBOR. The canonical encoding sorts map keys, so equal
// descriptions serialize to equal bytes.
const (
	snapshotMagic   = "XRTT"
	snapshotVersion = 1
)

var encMode = must.M1(cbor.CanonicalEncOptions().EncMode())

func (d *Description) body() ([]byte, error) {
	normalized := *d
	normalized.Capabilities = d.Capabilities.normalized()
	if len(normalized.Attributes) == 0 {
		normalized.Attributes = nil
	}
	body, err := encMode.Marshal(&normalized)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding target description %q", d.Platform)
	}
	return body, nil
}

// Serialize encodes the description to its snapshot form.
func (d *Description) Serialize() ([]byte, error) {
	body, err := d.body()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(snapshotMagic)+1+len(body))
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion)
	return append(out, body...), nil
}

// ParseDescription decodes a snapshot produced by Serialize, by this or an
// older release.
func ParseDescription(data []byte) (*Description, error) {
	if len(data) < len(snapshotMagic)+1 || string(data[:len(snapshotMagic)]) != snapshotMagic {
		return nil, errors.New("not a target snapshot: bad magic")
	}
	version := data[len(snapshotMagic)]
	if version == 0 || version > snapshotVersion {
		return nil, errors.Errorf("target snapshot version %d not supported (latest is %d)",
			version, snapshotVersion)
	}
	d := &Description{}
	if err := cbor.Unmarshal(data[len(snapshotMagic)+1:], d); err != nil {
		return nil, errors.Wrap(err, "decoding target snapshot")
	}
	if d.Platform == "" {
		return nil, errors.New("target snapshot has no platform")
	}
	return d, nil
}

// Fingerprint returns a digest of the description's canonical form. Two
// descriptions have the same fingerprint exactly when they describe the same
// target.
func (d *Description) Fingerprint() ([]byte, error) {
	body, err := d.body()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(body)
	return sum[:], nil
}

// Equal reports whether both descriptions describe the same target.
func (d *Description) Equal(other *Description) bool {
	if d == nil || other == nil {
		return d == other
	}
	a, errA := d.body()
	b, errB := other.body()
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// Supports returns nil when an artifact compiled for the artifact target can
// load and run on target d, otherwise an error describing every incompatibility.
func (d *Description) Supports(artifact *Description) error {
	var problems []string
	if d.Platform != artifact.Platform {
		problems = append(problems, fmt.Sprintf("platform %q, executable was compiled for %q",
			d.Platform, artifact.Platform))
	}
	if d.ISA != artifact.ISA {
		problems = append(problems, fmt.Sprintf("isa %q, executable requires %q", d.ISA, artifact.ISA))
	}
	if artifact.NumDevices > d.NumDevices {
		problems = append(problems, fmt.Sprintf("%d devices, executable requires %d",
			d.NumDevices, artifact.NumDevices))
	}
	if artifact.MemoryPerDevice > 0 && d.MemoryPerDevice > 0 &&
		artifact.MemoryPerDevice > d.MemoryPerDevice {
		problems = append(problems, fmt.Sprintf("%s per device, executable requires %s",
			humanize.IBytes(d.MemoryPerDevice), humanize.IBytes(artifact.MemoryPerDevice)))
	}
	if missing := d.Capabilities.Missing(artifact.Capabilities); len(missing) > 0 {
		problems = append(problems, "missing "+strings.Join(missing, ", "))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Errorf("target has %s", strings.Join(problems, "; "))
}

// WriteFile writes the description's snapshot to path. By convention snapshot
// files use the FileExtension suffix.
func WriteFile(path string, d *Description) error {
	data, err := d.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing target snapshot %q", path)
	}
	return nil
}

// ReadFile reads a snapshot written by WriteFile.
func ReadFile(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading target snapshot %q", path)
	}
	d, err := ParseDescription(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "target snapshot %q", path)
	}
	return d, nil
}
