// Package nest models the nested parameter and trajectory structures that
// cross the actor/learner boundary: a tree whose nodes are string-keyed maps
// and whose leaves are numeric arrays of any rank.
package nest

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

type DType string

const (
	Float64 DType = "float64"
	Int64   DType = "int64"
)

var ErrShapeMismatch = errors.New("data length does not match shape")

// MaxExactInt is the largest magnitude an Int64 tensor element may hold.
// Elements are stored as float64, which is exact only up to 2^53.
const MaxExactInt = 1 << 53

// Value is either a leaf (*Tensor) or a node (Map).
type Value interface {
	isValue()
}

// Tensor is a dense row-major array. A rank-0 tensor has an empty Shape and
// exactly one element.
type Tensor struct {
	DType DType
	Shape []int
	Data  []float64
}

func (*Tensor) isValue() {}

type Map map[string]Value

func (Map) isValue() {}

func NewTensor(dtype DType, shape []int, data []float64) (*Tensor, error) {
	if dtype == "" {
		dtype = Float64
	}
	if dtype != Float64 && dtype != Int64 {
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d", d)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: shape %v wants %d, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	if dtype == Int64 {
		for _, v := range data {
			if math.Abs(v) > MaxExactInt {
				return nil, fmt.Errorf("int64 value %v exceeds 2^53", v)
			}
		}
	}
	return &Tensor{
		DType: dtype,
		Shape: append([]int(nil), shape...),
		Data:  append([]float64(nil), data...),
	}, nil
}

func Scalar(v float64) *Tensor {
	return &Tensor{DType: Float64, Shape: []int{}, Data: []float64{v}}
}

func IntScalar(v int64) *Tensor {
	return &Tensor{DType: Int64, Shape: []int{}, Data: []float64{float64(v)}}
}

func Vector(values ...float64) *Tensor {
	return &Tensor{DType: Float64, Shape: []int{len(values)}, Data: append([]float64(nil), values...)}
}

// Matrix builds a float64 rank-2 tensor from rows of equal length.
func Matrix(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return &Tensor{DType: Float64, Shape: []int{0, 0}, Data: []float64{}}, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return &Tensor{DType: Float64, Shape: []int{len(rows), cols}, Data: data}, nil
}

func (t *Tensor) Rank() int {
	return len(t.Shape)
}

func (t *Tensor) Size() int {
	return len(t.Data)
}

// Len is the leading dimension, or -1 for a scalar.
func (t *Tensor) Len() int {
	if len(t.Shape) == 0 {
		return -1
	}
	return t.Shape[0]
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		DType: t.DType,
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...),
	}
}

// Row returns the i-th slice along the leading dimension, sharing storage.
func (t *Tensor) Row(i int) []float64 {
	if len(t.Shape) == 0 {
		return t.Data
	}
	stride := 1
	for _, d := range t.Shape[1:] {
		stride *= d
	}
	return t.Data[i*stride : (i+1)*stride]
}

// Equal compares dtype, shape and data bit-for-bit (NaN equals NaN).
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.DType != o.DType || len(t.Shape) != len(o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	for i := range t.Data {
		if math.Float64bits(t.Data[i]) != math.Float64bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// Keys returns the map keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m Map) Tensor(key string) (*Tensor, bool) {
	t, ok := m[key].(*Tensor)
	return t, ok
}

func (m Map) Map(key string) (Map, bool) {
	sub, ok := m[key].(Map)
	return sub, ok
}

// Lookup follows a path of keys through nested maps.
func (m Map) Lookup(path ...string) (Value, bool) {
	var cur Value = m
	for _, key := range path {
		node, ok := cur.(Map)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

func Clone(v Value) Value {
	switch x := v.(type) {
	case *Tensor:
		return x.Clone()
	case Map:
		return x.Clone()
	default:
		return nil
	}
}

func Equal(a, b Value) bool {
	switch x := a.(type) {
	case *Tensor:
		y, ok := b.(*Tensor)
		return ok && x.Equal(y)
	case Map:
		y, ok := b.(Map)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Walk visits every leaf in sorted key order with its path from the root.
func Walk(v Value, fn func(path []string, t *Tensor) error) error {
	return walk(nil, v, fn)
}

func walk(path []string, v Value, fn func([]string, *Tensor) error) error {
	switch x := v.(type) {
	case *Tensor:
		return fn(path, x)
	case Map:
		for _, k := range x.Keys() {
			if err := walk(append(path[:len(path):len(path)], k), x[k], fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unexpected node %T at %v", v, path)
	}
}
