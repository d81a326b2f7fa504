package serdes

import "github.com/pkg/errors"

// Sentinel errors returned by Registry operations and by SerDes
// implementations. They are wrapped with context, match them with errors.Is.
var (
	// ErrKindNotRegistered: the registry has no SerDes for the requested kind.
	ErrKindNotRegistered = errors.New("no serdes registered for kind")

	// ErrDuplicateKind: a SerDes for the kind is already registered.
	ErrDuplicateKind = errors.New("serdes kind already registered")

	// ErrMalformedPayload: the serialized bytes cannot be decoded.
	ErrMalformedPayload = errors.New("malformed serialized payload")

	// ErrInvalidOptions: the Options value is of the wrong type or is
	// missing a capability the SerDes requires.
	ErrInvalidOptions = errors.New("invalid deserialize options")
)
