package backends

import "github.com/pkg/errors"

// Sentinel errors of the compile/load/execute contract. Implementations wrap
// them with context, match them with errors.Is. Serialization failures reuse
// the serdes package sentinels (see serdes.ErrMalformedPayload).
var (
	// ErrUnsupportedOp: the program uses a program type or operation the
	// compiler does not implement.
	ErrUnsupportedOp = errors.New("operation not supported by this compiler")

	// ErrTargetMismatch: the program requires a capability (operation,
	// dtype) the compilation target does not have.
	ErrTargetMismatch = errors.New("program requires capabilities the target does not have")

	// ErrInternalCompilerError: the compiler failed on valid input. A bug in
	// the compiler, not in the program.
	ErrInternalCompilerError = errors.New("internal compiler error")

	// ErrTargetIncompatible: the executable was compiled for a target the
	// live backend does not satisfy.
	ErrTargetIncompatible = errors.New("executable is incompatible with the backend's target")

	// ErrArgumentMismatch: execution arguments do not match the executable's
	// input specs in arity, shape or dtype.
	ErrArgumentMismatch = errors.New("execution arguments do not match the executable's inputs")

	// ErrExecutionFailed: a device fault while running a loaded executable.
	ErrExecutionFailed = errors.New("execution failed")
)
