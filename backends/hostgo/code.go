package hostgo

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/xrt/internal/wire"
)

// ProgramType is the program dialect this backend compiles: a line-oriented
// stack program. Each non-empty line is one instruction; "#" starts a comment
// and blank lines are skipped.
//
//	const <dtype> <literal>   push a scalar constant, e.g. "const Float32 1.5"
//	arg <i>                   push a copy of the i-th argument
//	add                       pop two values of the same shape, push their sum
//	mul                       pop two values of the same shape, push their product
//	neg                       pop one value, push its negation
//	trap                      fault at execution time (for testing failure paths)
//
// At the end of the program the stack must hold exactly the declared outputs,
// bottom first.
const ProgramType = "xrt.stack"

// Instruction mnemonics, doubling as the operation names in Capabilities.
const (
	OpNameConst = "const"
	OpNameArg   = "arg"
	OpNameAdd   = "add"
	OpNameMul   = "mul"
	OpNameNeg   = "neg"
	OpNameTrap  = "trap"
)

type opCode int32

const (
	opInvalid opCode = iota
	opConst
	opArg
	opAdd
	opMul
	opNeg
	opTrap
)

func (c opCode) name() string {
	switch c {
	case opConst:
		return OpNameConst
	case opArg:
		return OpNameArg
	case opAdd:
		return OpNameAdd
	case opMul:
		return OpNameMul
	case opNeg:
		return OpNameNeg
	case opTrap:
		return OpNameTrap
	}
	return "invalid"
}

// op is one decoded instruction. Only opConst uses dtype and literal, only
// opArg uses arg.
type op struct {
	code opCode

	dtype dtypes.DType

	// literal holds the constant's raw bits: for float dtypes the
	// math.Float64bits of the value, for integer dtypes the two's complement
	// of the int64 value, for Bool 0 or 1.
	literal uint64

	// arg is the argument index pushed by opArg.
	arg int
}

// Compiled code format: a sequence of op messages. Fields are emitted in
// ascending order and zero values are omitted, so the encoding of a program
// is deterministic.
const (
	codeFieldOp wire.Number = 1

	opFieldCode    wire.Number = 1
	opFieldDType   wire.Number = 2
	opFieldLiteral wire.Number = 3
	opFieldArg     wire.Number = 4
)

func appendOps(b []byte, ops []op) []byte {
	for _, o := range ops {
		var m []byte
		m = wire.AppendVarintField(m, opFieldCode, uint64(o.code))
		m = wire.AppendVarintField(m, opFieldDType, uint64(o.dtype))
		m = wire.AppendFixed64Field(m, opFieldLiteral, o.literal)
		m = wire.AppendVarintField(m, opFieldArg, uint64(o.arg))
		b = wire.AppendMessageField(b, codeFieldOp, m)
	}
	return b
}

func parseOps(data []byte) ([]op, error) {
	var ops []op
	d := wire.NewDecoder(data)
	for d.Next() {
		if d.FieldNum() != codeFieldOp {
			continue
		}
		o, err := parseOp(d.Message())
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

func parseOp(data []byte) (op, error) {
	var o op
	d := wire.NewDecoder(data)
	for d.Next() {
		switch d.FieldNum() {
		case opFieldCode:
			o.code = opCode(d.Int32())
		case opFieldDType:
			o.dtype = dtypes.DType(d.Int32())
		case opFieldLiteral:
			o.literal = d.Fixed64()
		case opFieldArg:
			o.arg = d.Int()
		}
	}
	if err := d.Err(); err != nil {
		return op{}, err
	}
	if o.code <= opInvalid || o.code > opTrap {
		return op{}, errors.Errorf("unknown opcode %d", o.code)
	}
	return o, nil
}
