package serdes

import (
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Registry maps kinds to SerDes implementations.
//
// A Registry is safe for concurrent use: registration takes a write lock,
// Serialize/Deserialize only a read lock. Registration is expected to happen
// up front, at composition time, but nothing breaks if kinds are added while
// the registry is in use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]SerDes
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]SerDes)}
}

// Register adds sd to the registry. It returns ErrDuplicateKind if a SerDes
// for the same kind is already registered: replacing a SerDes is never valid,
// since payloads of the kind may already exist.
//
// It panics if sd is nil or reports an empty kind, both programming errors.
func (r *Registry) Register(sd SerDes) error {
	if sd == nil {
		exceptions.Panicf("serdes.Register: nil SerDes")
	}
	kind := sd.Kind()
	if kind == "" {
		exceptions.Panicf("serdes.Register: SerDes %T reports an empty kind", sd)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.entries[kind]; found {
		return errors.Wrapf(ErrDuplicateKind, "kind %q", kind)
	}
	r.entries[kind] = sd
	klog.V(2).Infof("serdes: registered kind %q (%T)", kind, sd)
	return nil
}

// MustRegister is Register for composition points where a duplicate kind is
// fatal. It panics on error.
func (r *Registry) MustRegister(sd SerDes) {
	if err := r.Register(sd); err != nil {
		exceptions.Panicf("serdes.MustRegister: %v", err)
	}
}

// Has reports whether a SerDes for kind is registered.
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, found := r.entries[kind]
	return found
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.entries))
	for kind := range r.entries {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

func (r *Registry) lookup(kind Kind) (SerDes, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sd, found := r.entries[kind]
	if !found {
		return nil, errors.Wrapf(ErrKindNotRegistered, "kind %q", kind)
	}
	return sd, nil
}

// Serialize encodes value using the SerDes registered for its kind. The
// resulting bytes carry no kind tag: the caller is responsible for keeping
// the kind next to the payload (see the executable and snapshot formats).
func (r *Registry) Serialize(value Serializable) ([]byte, error) {
	if value == nil {
		exceptions.Panicf("serdes.Serialize: nil value")
	}
	sd, err := r.lookup(value.SerDesKind())
	if err != nil {
		return nil, err
	}
	data, err := sd.Serialize(value)
	if err != nil {
		return nil, errors.WithMessagef(err, "serializing kind %q", value.SerDesKind())
	}
	return data, nil
}

// Deserialize decodes data with the SerDes registered for kind, passing
// options through to it. See Options for the contract.
func (r *Registry) Deserialize(kind Kind, data []byte, options Options) (Serializable, error) {
	sd, err := r.lookup(kind)
	if err != nil {
		return nil, err
	}
	value, err := sd.Deserialize(data, options)
	if err != nil {
		return nil, errors.WithMessagef(err, "deserializing kind %q", kind)
	}
	if value == nil {
		return nil, errors.Errorf("serdes for kind %q returned neither value nor error", kind)
	}
	return value, nil
}

// DeserializeAs deserializes data of the given kind and asserts the result to
// T, for callers that know the concrete type a kind produces.
func DeserializeAs[T Serializable](r *Registry, kind Kind, data []byte, options Options) (T, error) {
	var zero T
	value, err := r.Deserialize(kind, data, options)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, errors.Errorf("kind %q deserialized to %T, expected %T", kind, value, zero)
	}
	return typed, nil
}
