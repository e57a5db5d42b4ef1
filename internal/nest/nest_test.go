package nest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensorValidatesShape(t *testing.T) {
	_, err := NewTensor(Float64, []int{2, 3}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewTensor(Float64, []int{-1}, nil)
	assert.Error(t, err)

	_, err = NewTensor("complex128", []int{1}, []float64{1})
	assert.Error(t, err)

	tensor, err := NewTensor("", []int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, Float64, tensor.DType)
	assert.Equal(t, 2, tensor.Rank())
	assert.Equal(t, 2, tensor.Len())
	assert.Equal(t, []float64{3, 4}, tensor.Row(1))
}

func TestNewTensorBoundsInt64(t *testing.T) {
	_, err := NewTensor(Int64, []int{1}, []float64{MaxExactInt})
	require.NoError(t, err)

	_, err = NewTensor(Int64, []int{1}, []float64{2 * MaxExactInt})
	assert.Error(t, err)

	_, err = NewTensor(Float64, []int{1}, []float64{2 * MaxExactInt})
	assert.NoError(t, err)
}

func TestMatrixRejectsRaggedRows(t *testing.T) {
	_, err := Matrix([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	m, err := Matrix([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, m.Shape)
}

func TestEqual(t *testing.T) {
	a := Map{"p": Map{"w": Vector(1, 2)}, "s": Scalar(math.NaN())}
	b := a.Clone()
	assert.True(t, Equal(a, b))

	b["p"].(Map)["w"].(*Tensor).Data[0] = 5
	assert.False(t, Equal(a, b))
	assert.Equal(t, 1.0, a["p"].(Map)["w"].(*Tensor).Data[0], "clone must not share storage")

	assert.False(t, Equal(Map{"x": Scalar(1)}, Map{"x": IntScalar(1)}))
	assert.False(t, Equal(Map{"x": Scalar(1)}, Map{"y": Scalar(1)}))
	assert.False(t, Equal(Map{"x": Vector(1)}, Map{"x": Map{}}))
}

func TestWalkVisitsLeavesInKeyOrder(t *testing.T) {
	tree := Map{
		"b": Map{"y": Scalar(1), "x": Scalar(2)},
		"a": Vector(3),
	}
	var paths []string
	err := Walk(tree, func(path []string, _ *Tensor) error {
		joined := ""
		for i, p := range path {
			if i > 0 {
				joined += "/"
			}
			joined += p
		}
		paths = append(paths, joined)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b/x", "b/y"}, paths)
}

func TestLookup(t *testing.T) {
	tree := Map{"policy": Map{"w": Vector(1)}}
	v, ok := tree.Lookup("policy", "w")
	require.True(t, ok)
	assert.True(t, Vector(1).Equal(v.(*Tensor)))

	_, ok = tree.Lookup("policy", "w", "deeper")
	assert.False(t, ok)
	_, ok = tree.Lookup("missing")
	assert.False(t, ok)
}
