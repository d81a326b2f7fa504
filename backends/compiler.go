package backends

import (
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/xrt/program"
	"github.com/gomlx/xrt/targets"
)

// Compiler compiles programs for a target, ahead of time or not.
type Compiler interface {
	// Compile compiles prog against target.
	//
	// client is the live backend when compiling for immediate use, and nil
	// for ahead-of-time compilation; the produced artifact must be the same
	// either way. options nil means default options.
	//
	// Compile fails with ErrUnsupportedOp for program types or operations
	// the compiler does not implement, with ErrTargetMismatch when the
	// program needs capabilities target lacks, and with
	// ErrInternalCompilerError when the compiler itself misbehaves.
	Compile(options *program.CompileOptions, prog *program.Program,
		target *targets.Description, client Backend) (*Executable, error)
}

var registeredCompilers = make(map[string]Compiler)

// RegisterCompiler registers the compiler serving a platform. Backends
// register theirs in their package init, next to Register. Registering the
// same platform twice panics.
func RegisterCompiler(platform string, compiler Compiler) {
	if compiler == nil {
		exceptions.Panicf("RegisterCompiler(%q): nil compiler", platform)
	}
	if _, found := registeredCompilers[platform]; found {
		exceptions.Panicf("compiler for platform %q already registered", platform)
	}
	registeredCompilers[platform] = compiler
}

// Compilers returns the platforms with a registered compiler, sorted.
func Compilers() []string {
	platforms := make([]string, 0, len(registeredCompilers))
	for platform := range registeredCompilers {
		platforms = append(platforms, platform)
	}
	slices.Sort(platforms)
	return platforms
}

// CompilerFor returns the compiler registered for the platform.
func CompilerFor(platform string) (Compiler, error) {
	compiler, found := registeredCompilers[platform]
	if !found {
		return nil, errors.Errorf("no compiler registered for platform %q (registered: %s)",
			platform, strings.Join(Compilers(), ", "))
	}
	return compiler, nil
}

// Compile compiles prog for target with the compiler registered for the
// target's platform. This is the entry point for ahead-of-time compilation:
// target typically comes from a snapshot file and client is nil.
func Compile(options *program.CompileOptions, prog *program.Program,
	target *targets.Description, client Backend) (*Executable, error) {
	if target == nil {
		return nil, errors.New("Compile: target is required")
	}
	compiler, err := CompilerFor(target.Platform)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(options, prog, target, client)
}
