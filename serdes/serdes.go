// Package serdes provides registries of serializers/deserializers ("SerDes")
// for values that travel as versioned bytes: programs, compile options and
// similar artifacts.
//
// Every such value implements Serializable and names, through SerDesKind, the
// SerDes responsible for it. A Registry maps kinds to SerDes implementations
// and is built explicitly at composition time: the set of kinds a process
// understands is visible where the registry is constructed, and two processes
// can carry different registries side by side.
//
// Deserialization is context dependent: a SerDes may require capabilities from
// the caller (for example a device resolver) passed through Options.
package serdes

// Kind names a serialization format. Kinds are namespaced by convention,
// e.g. "xrt.Program", and must be stable across releases since they are
// stored inside serialized payloads.
type Kind string

// Serializable is implemented by values that a Registry can serialize.
type Serializable interface {
	// SerDesKind returns the kind of the SerDes responsible for this value.
	SerDesKind() Kind
}

// Options carries context for deserialization. Each SerDes documents the
// concrete Options type it requires and fails with ErrInvalidOptions when
// handed anything else. SerDes that need no context accept nil.
type Options any

// SerDes serializes and deserializes the values of one Kind.
type SerDes interface {
	// Kind returns the kind this SerDes serves.
	Kind() Kind

	// Serialize encodes value. It is only called with values whose
	// SerDesKind matches Kind.
	Serialize(value Serializable) ([]byte, error)

	// Deserialize decodes data produced by Serialize, possibly by an older
	// release. The returned value is freshly allocated and owned by the
	// caller.
	Deserialize(data []byte, options Options) (Serializable, error)
}

// New returns a SerDes assembled from its two function halves.
func New(kind Kind,
	serialize func(value Serializable) ([]byte, error),
	deserialize func(data []byte, options Options) (Serializable, error)) SerDes {
	return &funcSerDes{kind: kind, serialize: serialize, deserialize: deserialize}
}

type funcSerDes struct {
	kind        Kind
	serialize   func(Serializable) ([]byte, error)
	deserialize func([]byte, Options) (Serializable, error)
}

func (f *funcSerDes) Kind() Kind { return f.kind }

func (f *funcSerDes) Serialize(value Serializable) ([]byte, error) {
	return f.serialize(value)
}

func (f *funcSerDes) Deserialize(data []byte, options Options) (Serializable, error) {
	return f.deserialize(data, options)
}
