/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package shapes

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Len(t, shape1.Dimensions, 3)
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))

	require.Panics(t, func() { _ = Make(Float32, 4, 0) })
}

func TestDim(t *testing.T) {
	shape := Make(Float32, 4, 3, 2)
	require.Equal(t, 4, shape.Dim(0))
	require.Equal(t, 3, shape.Dim(1))
	require.Equal(t, 2, shape.Dim(2))
	require.Equal(t, 4, shape.Dim(-3))
	require.Equal(t, 3, shape.Dim(-2))
	require.Equal(t, 2, shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })
}

func TestEqual(t *testing.T) {
	require.True(t, Make(Int32, 2, 3).Equal(Make(Int32, 2, 3)))
	require.True(t, Make(Float64).Equal(Make(Float64)))
	require.False(t, Make(Int32, 2, 3).Equal(Make(Int32, 3, 2)))
	require.False(t, Make(Int32, 2, 3).Equal(Make(Int64, 2, 3)))
	require.False(t, Make(Int32, 2, 3).Equal(Make(Int32, 2)))

	require.True(t, Make(Int32, 2, 3).EqualDimensions(Make(Float32, 2, 3)))
	require.False(t, Make(Int32, 2, 3).EqualDimensions(Make(Int32, 2)))
}

func TestClone(t *testing.T) {
	shape := Make(Float32, 4, 3)
	clone := shape.Clone()
	require.True(t, shape.Equal(clone))
	clone.Dimensions[0] = 7
	require.Equal(t, 4, shape.Dim(0))
}

func TestString(t *testing.T) {
	require.Equal(t, "(Float32)[4 3 2]", Make(Float32, 4, 3, 2).String())
	require.Equal(t, "(Int64)", Make(Int64).String())
}

func TestWireRoundTrip(t *testing.T) {
	for _, shape := range []Shape{
		Make(Float32, 4, 3, 2),
		Make(Int64),
		Make(Bool, 1),
		Make(Float16, 1024),
	} {
		data := shape.AppendWire(nil)
		got, err := FromWire(data)
		require.NoError(t, err)
		require.True(t, shape.Equal(got), "round trip of %s returned %s", shape, got)
	}
}

func TestFromWireRejects(t *testing.T) {
	// Missing dtype.
	_, err := FromWire(nil)
	require.ErrorContains(t, err, "missing or invalid dtype")

	// Truncated payload.
	data := Make(Float32, 4, 3).AppendWire(nil)
	_, err = FromWire(data[:len(data)-1])
	require.Error(t, err)
}
