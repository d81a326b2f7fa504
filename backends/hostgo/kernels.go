package hostgo

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/gomlx/xrt/backends"
)

// numeric covers the flat types the generic kernels run on. Float16 is not a
// Go arithmetic type, it gets dedicated kernels through x448/float16
// conversions.
type numeric interface {
	constraints.Integer | constraints.Float
}

// storeScalar writes a constant's raw bits (see op.literal) as the first
// element of flat.
func storeScalar(dtype dtypes.DType, flat any, bits uint64) error {
	switch dtype {
	case dtypes.Bool:
		flat.([]bool)[0] = bits != 0
	case dtypes.Int32:
		flat.([]int32)[0] = int32(int64(bits))
	case dtypes.Int64:
		flat.([]int64)[0] = int64(bits)
	case dtypes.Float32:
		flat.([]float32)[0] = float32(math.Float64frombits(bits))
	case dtypes.Float64:
		flat.([]float64)[0] = math.Float64frombits(bits)
	case dtypes.Float16:
		flat.([]float16.Float16)[0] = float16.Fromfloat32(float32(math.Float64frombits(bits)))
	default:
		return errors.Wrapf(backends.ErrExecutionFailed, "no const kernel for dtype %s", dtype)
	}
	return nil
}

// applyBinary applies op elementwise over dst and src, writing into dst. Both
// must be flat slices of the dtype's Go type, same length.
func applyBinary(code opCode, dtype dtypes.DType, dst, src any) error {
	switch dtype {
	case dtypes.Int32:
		binarySlice(code, dst.([]int32), src.([]int32))
	case dtypes.Int64:
		binarySlice(code, dst.([]int64), src.([]int64))
	case dtypes.Float32:
		binarySlice(code, dst.([]float32), src.([]float32))
	case dtypes.Float64:
		binarySlice(code, dst.([]float64), src.([]float64))
	case dtypes.Float16:
		binaryFloat16(code, dst.([]float16.Float16), src.([]float16.Float16))
	default:
		return errors.Wrapf(backends.ErrExecutionFailed, "no %s kernel for dtype %s", code.name(), dtype)
	}
	return nil
}

func binarySlice[T numeric](code opCode, dst, src []T) {
	switch code {
	case opAdd:
		for i := range dst {
			dst[i] += src[i]
		}
	case opMul:
		for i := range dst {
			dst[i] *= src[i]
		}
	}
}

func binaryFloat16(code opCode, dst, src []float16.Float16) {
	for i := range dst {
		lhs, rhs := dst[i].Float32(), src[i].Float32()
		switch code {
		case opAdd:
			lhs += rhs
		case opMul:
			lhs *= rhs
		}
		dst[i] = float16.Fromfloat32(lhs)
	}
}

// applyNeg negates flat in place.
func applyNeg(dtype dtypes.DType, flat any) error {
	switch dtype {
	case dtypes.Int32:
		negSlice(flat.([]int32))
	case dtypes.Int64:
		negSlice(flat.([]int64))
	case dtypes.Float32:
		negSlice(flat.([]float32))
	case dtypes.Float64:
		negSlice(flat.([]float64))
	case dtypes.Float16:
		flat16 := flat.([]float16.Float16)
		for i := range flat16 {
			flat16[i] = float16.Fromfloat32(-flat16[i].Float32())
		}
	default:
		return errors.Wrapf(backends.ErrExecutionFailed, "no neg kernel for dtype %s", dtype)
	}
	return nil
}

func negSlice[T numeric](flat []T) {
	for i := range flat {
		flat[i] = -flat[i]
	}
}
