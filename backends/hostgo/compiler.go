package hostgo

import (
	"math"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/xrt/backends"
	"github.com/gomlx/xrt/program"
	"github.com/gomlx/xrt/serdes"
	"github.com/gomlx/xrt/targets"
	"github.com/gomlx/xrt/types/shapes"
)

// Compiler compiles ProgramType programs to the hostgo bytecode. It works
// against a target description alone, so it serves both just-in-time use and
// ahead-of-time compilation on machines without the backend.
type Compiler struct{}

// Compile-time check:
var _ backends.Compiler = (*Compiler)(nil)

func malformedProgram(format string, args ...any) error {
	return errors.Wrapf(serdes.ErrMalformedPayload, format, args...)
}

// Compile implements backends.Compiler. client is not used: the artifact is a
// pure function of the program and the target.
func (c *Compiler) Compile(options *program.CompileOptions, prog *program.Program,
	target *targets.Description, client backends.Backend) (exec *backends.Executable, err error) {
	defer func() {
		if r := recover(); r != nil {
			exec = nil
			err = errors.Wrapf(backends.ErrInternalCompilerError, "compiling for %q: %v", BackendName, r)
		}
	}()
	_ = options // CompileOptions carries no knobs yet.
	if prog == nil {
		return nil, errors.Errorf("%q compiler: nil program", BackendName)
	}
	if target == nil {
		return nil, errors.Errorf("%q compiler: nil target", BackendName)
	}
	if prog.Type != ProgramType {
		return nil, errors.Wrapf(backends.ErrUnsupportedOp, "program type %q, %q compiles only %q",
			prog.Type, BackendName, ProgramType)
	}

	ops, err := parseText(prog.Text)
	if err != nil {
		return nil, err
	}
	if err := checkSharding(prog); err != nil {
		return nil, err
	}
	inputShapes := make([]shapes.Shape, len(prog.InputSpecs))
	for i, spec := range prog.InputSpecs {
		inputShapes[i] = spec.Shape
	}
	outputShapes := make([]shapes.Shape, len(prog.OutputSpecs))
	for i, spec := range prog.OutputSpecs {
		outputShapes[i] = spec.Shape
	}
	if err := checkStack(ops, inputShapes, outputShapes); err != nil {
		return nil, err
	}
	if err := checkTarget(ops, prog, target); err != nil {
		return nil, err
	}
	return backends.NewExecutable(prog.Name, target, inputShapes, outputShapes, appendOps(nil, ops))
}

// parseText tokenizes the program, one instruction per line. It resolves
// mnemonics and literals but knows nothing about the program's inputs and
// outputs, that is checkStack's job.
func parseText(text []byte) ([]op, error) {
	var ops []op
	for lineNum, line := range strings.Split(string(text), "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		o, err := parseInstruction(fields)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", lineNum+1)
		}
		ops = append(ops, o)
	}
	return ops, nil
}

func parseInstruction(fields []string) (op, error) {
	switch mnemonic := fields[0]; mnemonic {
	case OpNameConst:
		if len(fields) != 3 {
			return op{}, malformedProgram("const takes a dtype and a literal, got %q", strings.Join(fields, " "))
		}
		dtype, err := dtypes.DTypeString(fields[1])
		if err != nil || dtype == dtypes.InvalidDType {
			return op{}, malformedProgram("unknown dtype %q", fields[1])
		}
		literal, err := parseLiteral(dtype, fields[2])
		if err != nil {
			return op{}, err
		}
		return op{code: opConst, dtype: dtype, literal: literal}, nil

	case OpNameArg:
		if len(fields) != 2 {
			return op{}, malformedProgram("arg takes an argument index, got %q", strings.Join(fields, " "))
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil || idx < 0 {
			return op{}, malformedProgram("argument index must be a non-negative integer, got %q", fields[1])
		}
		return op{code: opArg, arg: idx}, nil

	default:
		code, found := zeroOperandCodes[mnemonic]
		if !found {
			return op{}, errors.Wrapf(backends.ErrUnsupportedOp, "unknown instruction %q", mnemonic)
		}
		if len(fields) != 1 {
			return op{}, malformedProgram("%s takes no operands, got %q", mnemonic, strings.Join(fields, " "))
		}
		return op{code: code}, nil
	}
}

var zeroOperandCodes = map[string]opCode{
	OpNameAdd:  opAdd,
	OpNameMul:  opMul,
	OpNameNeg:  opNeg,
	OpNameTrap: opTrap,
}

// parseLiteral parses a const literal into its raw bits, see op.literal.
func parseLiteral(dtype dtypes.DType, s string) (uint64, error) {
	switch {
	case dtype == dtypes.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return 0, malformedProgram("bad Bool literal %q", s)
		}
		if v {
			return 1, nil
		}
		return 0, nil
	case dtype.IsInt() && !dtype.IsUnsigned():
		v, err := strconv.ParseInt(s, 10, int(dtype.Memory())*8)
		if err != nil {
			return 0, malformedProgram("bad %s literal %q: %v", dtype, s, err)
		}
		return uint64(v), nil
	case dtype.IsFloat():
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, malformedProgram("bad %s literal %q: %v", dtype, s, err)
		}
		return math.Float64bits(v), nil
	}
	return 0, errors.Wrapf(backends.ErrUnsupportedOp, "const of dtype %s", dtype)
}

// checkSharding rejects sharded inputs or outputs, the backend only runs
// replicated arrays.
func checkSharding(prog *program.Program) error {
	for i, spec := range prog.InputSpecs {
		if len(spec.Sharding.DimShards) > 0 {
			return errors.Wrapf(backends.ErrUnsupportedOp, "input %d is sharded, %q only runs replicated arrays",
				i, BackendName)
		}
	}
	for i, spec := range prog.OutputSpecs {
		if len(spec.Sharding.DimShards) > 0 {
			return errors.Wrapf(backends.ErrUnsupportedOp, "output %d is sharded, %q only runs replicated arrays",
				i, BackendName)
		}
	}
	return nil
}

// checkStack simulates the stack over shapes: every instruction must find
// its operands, operands of binary ops must agree, and the final stack must
// be exactly the declared outputs, bottom first. The interpreter relies on
// this, it runs without bounds checks of its own; Load re-runs it, so a
// tampered artifact cannot reach execution.
func checkStack(ops []op, inputShapes, outputShapes []shapes.Shape) error {
	var stack []shapes.Shape
	pop := func() shapes.Shape {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top
	}
	for pc, o := range ops {
		switch o.code {
		case opConst:
			stack = append(stack, shapes.Make(o.dtype))
		case opArg:
			if o.arg >= len(inputShapes) {
				return malformedProgram("instruction %d: arg %d out of range, program has %d inputs",
					pc, o.arg, len(inputShapes))
			}
			stack = append(stack, inputShapes[o.arg])
		case opAdd, opMul:
			if len(stack) < 2 {
				return malformedProgram("instruction %d: %s needs 2 values on the stack, found %d",
					pc, o.code.name(), len(stack))
			}
			rhs, lhs := pop(), pop()
			if !lhs.Equal(rhs) {
				return malformedProgram("instruction %d: %s operands have different shapes, %s and %s",
					pc, o.code.name(), lhs, rhs)
			}
			if lhs.DType == dtypes.Bool {
				return errors.Wrapf(backends.ErrUnsupportedOp, "instruction %d: %s on Bool", pc, o.code.name())
			}
			stack = append(stack, lhs)
		case opNeg:
			if len(stack) < 1 {
				return malformedProgram("instruction %d: neg needs 1 value on the stack, found 0", pc)
			}
			if top := stack[len(stack)-1]; top.DType == dtypes.Bool {
				return errors.Wrapf(backends.ErrUnsupportedOp, "instruction %d: neg on Bool", pc)
			}
		case opTrap:
			// No stack effect, faults at execution.
		}
	}

	if len(stack) != len(outputShapes) {
		return malformedProgram("program leaves %d values on the stack, %d outputs declared",
			len(stack), len(outputShapes))
	}
	for i, want := range outputShapes {
		if !stack[i].Equal(want) {
			return malformedProgram("output %d has shape %s, program computes %s", i, want, stack[i])
		}
	}
	return nil
}

// checkTarget verifies the target has everything the compiled program will
// rely on at load and execution time.
func checkTarget(ops []op, prog *program.Program, target *targets.Description) error {
	if target.Platform != BackendName {
		return errors.Wrapf(backends.ErrTargetMismatch, "target platform is %q, this compiler produces %q code",
			target.Platform, BackendName)
	}
	if target.ISA != ISA {
		return errors.Wrapf(backends.ErrTargetMismatch, "target isa is %q, this compiler emits %q",
			target.ISA, ISA)
	}
	if len(prog.Devices) > target.NumDevices {
		return errors.Wrapf(backends.ErrTargetMismatch, "program addresses %d devices, target has %d",
			len(prog.Devices), target.NumDevices)
	}
	if missing := target.Capabilities.Missing(requiredCapabilities(ops, prog)); len(missing) > 0 {
		return errors.Wrapf(backends.ErrTargetMismatch, "target lacks %s", strings.Join(missing, ", "))
	}
	return nil
}

// requiredCapabilities collects the operations and dtypes the program touches:
// every instruction used, the dtypes of constants, and the dtypes of all
// declared inputs and outputs.
func requiredCapabilities(ops []op, prog *program.Program) targets.Capabilities {
	required := targets.Capabilities{
		Operations: make(map[string]bool),
		DTypes:     make(map[dtypes.DType]bool),
	}
	for _, o := range ops {
		required.Operations[o.code.name()] = true
		if o.code == opConst {
			required.DTypes[o.dtype] = true
		}
	}
	for _, spec := range prog.InputSpecs {
		required.DTypes[spec.Shape.DType] = true
	}
	for _, spec := range prog.OutputSpecs {
		required.DTypes[spec.Shape.DType] = true
	}
	return required
}
