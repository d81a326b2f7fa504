package hostgo

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/xrt/targets"
)

// Capabilities of the hostgo backend: the set of supported operations and
// data types. Captured targets carry a copy of this, so executables record
// exactly what they relied on.
var Capabilities = targets.Capabilities{
	Operations: map[string]bool{
		OpNameConst: true,
		OpNameArg:   true,
		OpNameAdd:   true,
		OpNameMul:   true,
		OpNameNeg:   true,
		OpNameTrap:  true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Bool:    true,
		dtypes.Int32:   true,
		dtypes.Int64:   true,
		dtypes.Float16: true,
		dtypes.Float32: true,
		dtypes.Float64: true,
	},
}
