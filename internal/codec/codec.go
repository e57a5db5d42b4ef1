// Package codec converts parameter snapshots and trajectories to and from the
// JSON text carried by the actor/learner RPCs. Array leaves travel as plain
// nested lists; every list found while decoding becomes a tensor again.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"distributed-actor-learner/internal/nest"
)

// Version identifies the wire layout written by this package.
const Version = "nest.json.v1"

var (
	ErrMalformedSnapshot   = errors.New("malformed snapshot")
	ErrMalformedTrajectory = errors.New("malformed trajectory")
)

func EncodeSnapshot(params nest.Map) ([]byte, error) {
	if params == nil {
		params = nest.Map{}
	}
	return encodeTree(params)
}

func DecodeSnapshot(data []byte) (nest.Map, error) {
	params, err := decodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return params, nil
}

func EncodeTrajectory(traj nest.Map) ([]byte, error) {
	if _, err := UnrollLength(traj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrajectory, err)
	}
	return encodeTree(traj)
}

func DecodeTrajectory(data []byte) (nest.Map, error) {
	traj, err := decodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrajectory, err)
	}
	if _, err := UnrollLength(traj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrajectory, err)
	}
	return traj, nil
}

// UnrollLength returns the shared leading dimension of every per-step field.
// Scalar leaves are per-trajectory metadata and do not take part.
func UnrollLength(traj nest.Map) (int, error) {
	if len(traj) == 0 {
		return 0, errors.New("empty trajectory")
	}
	length := -1
	var first string
	err := nest.Walk(traj, func(path []string, t *nest.Tensor) error {
		if t.Rank() == 0 {
			return nil
		}
		name := strings.Join(path, ".")
		if length < 0 {
			length, first = t.Len(), name
			return nil
		}
		if t.Len() != length {
			return fmt.Errorf("field %s has %d steps, %s has %d", name, t.Len(), first, length)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if length < 0 {
		return 0, errors.New("trajectory has no per-step fields")
	}
	return length, nil
}

func encodeTree(root nest.Map) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v nest.Value) error {
	switch x := v.(type) {
	case nest.Map:
		buf.WriteByte('{')
		for i, k := range x.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeValue(buf, x[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	case *nest.Tensor:
		if x == nil {
			return errors.New("nil tensor")
		}
		want := 1
		for _, d := range x.Shape {
			if d < 0 {
				return fmt.Errorf("negative dimension %d in shape %v", d, x.Shape)
			}
			want *= d
		}
		if want != len(x.Data) {
			return fmt.Errorf("%w: shape %v holds %d values", nest.ErrShapeMismatch, x.Shape, len(x.Data))
		}
		_, err := writeDims(buf, x.DType, x.Shape, x.Data)
		return err
	default:
		return fmt.Errorf("cannot encode %T", v)
	}
}

// writeDims writes data as nested lists following shape and returns the
// remaining data.
func writeDims(buf *bytes.Buffer, dtype nest.DType, shape []int, data []float64) ([]float64, error) {
	if len(shape) == 0 {
		if err := writeNumber(buf, dtype, data[0]); err != nil {
			return nil, err
		}
		return data[1:], nil
	}
	buf.WriteByte('[')
	var err error
	for i := 0; i < shape[0]; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if data, err = writeDims(buf, dtype, shape[1:], data); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return data, nil
}

func writeNumber(buf *bytes.Buffer, dtype nest.DType, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite value %v", v)
	}
	if dtype == nest.Int64 {
		if v != math.Trunc(v) {
			return fmt.Errorf("non-integral value %v in int64 tensor", v)
		}
		if math.Abs(v) > nest.MaxExactInt {
			return fmt.Errorf("int64 value %v exceeds 2^53", v)
		}
		buf.WriteString(strconv.FormatInt(int64(v), 10))
		return nil
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	buf.WriteString(s)
	return nil
}

func decodeTree(data []byte) (nest.Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("trailing data after document")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level is %s, want object", kindOf(raw))
	}
	return decodeMap(obj)
}

func decodeMap(obj map[string]any) (nest.Map, error) {
	out := make(nest.Map, len(obj))
	for k, raw := range obj {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func decodeValue(raw any) (nest.Value, error) {
	switch x := raw.(type) {
	case map[string]any:
		return decodeMap(x)
	case []any:
		return decodeArray(x)
	case json.Number:
		return decodeArray(x)
	default:
		return nil, fmt.Errorf("unexpected %s leaf", kindOf(raw))
	}
}

// decodeArray turns a number or a rectangular nested list of numbers into a
// tensor. The dtype is int64 unless some element is written as a float.
func decodeArray(raw any) (*nest.Tensor, error) {
	var shape []int
	for cur := raw; ; {
		list, ok := cur.([]any)
		if !ok {
			break
		}
		shape = append(shape, len(list))
		if len(list) == 0 {
			break
		}
		cur = list[0]
	}

	var nums []json.Number
	if err := flatten(raw, shape, &nums); err != nil {
		return nil, err
	}

	dtype := nest.Int64
	if len(nums) == 0 {
		dtype = nest.Float64
	}
	for _, n := range nums {
		if strings.ContainsAny(n.String(), ".eE") {
			dtype = nest.Float64
			break
		}
	}

	data := make([]float64, len(nums))
	for i, n := range nums {
		if dtype == nest.Int64 {
			iv, err := strconv.ParseInt(n.String(), 10, 64)
			if err != nil {
				return nil, err
			}
			if iv > nest.MaxExactInt || iv < -nest.MaxExactInt {
				return nil, fmt.Errorf("integer %d exceeds 2^53", iv)
			}
			data[i] = float64(iv)
			continue
		}
		fv, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return nil, err
		}
		data[i] = fv
	}
	if shape == nil {
		shape = []int{}
	}
	return &nest.Tensor{DType: dtype, Shape: shape, Data: data}, nil
}

func flatten(raw any, shape []int, out *[]json.Number) error {
	if len(shape) == 0 {
		n, ok := raw.(json.Number)
		if !ok {
			return fmt.Errorf("array element is %s, want number", kindOf(raw))
		}
		*out = append(*out, n)
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("ragged array: found %s where a list of %d was expected", kindOf(raw), shape[0])
	}
	if len(list) != shape[0] {
		return fmt.Errorf("ragged array: list of %d where %d was expected", len(list), shape[0])
	}
	for _, item := range list {
		if err := flatten(item, shape[1:], out); err != nil {
			return err
		}
	}
	return nil
}

func kindOf(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}
