// Package hash provides the structural hashing primitive every cache key in weft is
// derived from.
//
// Sum is deterministic and structural: equal values hash equal regardless of map
// iteration order, and values that carry their own identity (Hashable) contribute it
// directly instead of being walked. Collisions are not defended against.
package hash

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hash is a fixed-width structural digest.
type Hash uint64

// String renders the hash as 16 hex digits.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Parse reads a hash rendered by String.
func Parse(s string) (Hash, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return Hash(v), nil
}

// Hashable is implemented by values that already know their structural hash.
type Hashable interface {
	Hash() Hash
}

// NonHashableError reports a value that has no structural hash (functions, channels,
// unsafe pointers and cyclic pointer graphs).
type NonHashableError struct {
	Type   string
	Reason string
}

func (e *NonHashableError) Error() string {
	return fmt.Sprintf("value of type %s is not hashable: %s", e.Type, e.Reason)
}

const (
	tagNil byte = iota + 1
	tagBool
	tagInt
	tagUint
	tagFloat
	tagComplex
	tagString
	tagBytes
	tagList
	tagMap
	tagStruct
	tagHashable
	tagError
)

var (
	hashableType = reflect.TypeOf((*Hashable)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// Sum returns the structural hash of v.
func Sum(v any) (Hash, error) {
	w := &walker{visiting: make(map[visit]struct{})}
	d := xxhash.New()
	if err := w.write(d, reflect.ValueOf(v)); err != nil {
		return 0, err
	}
	return Hash(d.Sum64()), nil
}

// Tuple hashes a tag followed by an ordered list of parts. It is the building block
// for hashing tagged-union variants.
func Tuple(tag string, parts ...any) (Hash, error) {
	values := make([]any, 0, len(parts)+1)
	values = append(values, tag)
	values = append(values, parts...)
	return Sum(values)
}

// Must is like Sum but panics when v is not hashable.
func Must(v any) Hash {
	h, err := Sum(v)
	if err != nil {
		panic(err)
	}
	return h
}

// visit identifies a reference on the current path. Slices need their length
// too, since a slice and a prefix of it share a data pointer.
type visit struct {
	ptr  uintptr
	n    int
	kind reflect.Kind
}

type walker struct {
	visiting map[visit]struct{}
	buf      [9]byte
}

// enter records v on the current path and reports a cycle if it is already there.
func (w *walker) enter(v reflect.Value, n int) (func(), error) {
	key := visit{ptr: v.Pointer(), n: n, kind: v.Kind()}
	if _, ok := w.visiting[key]; ok {
		return nil, &NonHashableError{Type: v.Type().String(), Reason: "cyclic reference"}
	}
	w.visiting[key] = struct{}{}
	return func() { delete(w.visiting, key) }, nil
}

func (w *walker) tag(d *xxhash.Digest, t byte, n uint64) {
	w.buf[0] = t
	binary.LittleEndian.PutUint64(w.buf[1:], n)
	_, _ = d.Write(w.buf[:])
}

func (w *walker) str(d *xxhash.Digest, s string) {
	w.tag(d, tagString, uint64(len(s)))
	_, _ = d.WriteString(s)
}

func (w *walker) write(d *xxhash.Digest, v reflect.Value) error {
	if !v.IsValid() {
		w.tag(d, tagNil, 0)
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			w.tag(d, tagNil, 0)
			return nil
		}
	}

	if v.CanInterface() {
		if v.Type().Implements(hashableType) {
			w.tag(d, tagHashable, uint64(v.Interface().(Hashable).Hash()))
			return nil
		}
		if v.Kind() != reflect.Interface && v.Type().Implements(errorType) {
			err := v.Interface().(error)
			w.tag(d, tagError, 0)
			w.str(d, v.Type().String())
			w.str(d, err.Error())
			return nil
		}
	}

	switch v.Kind() {
	case reflect.Bool:
		var b uint64
		if v.Bool() {
			b = 1
		}
		w.tag(d, tagBool, b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.tag(d, tagInt, uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.tag(d, tagUint, v.Uint())
	case reflect.Float32, reflect.Float64:
		w.tag(d, tagFloat, floatBits(v.Float()))
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		w.tag(d, tagComplex, floatBits(real(c)))
		w.tag(d, tagComplex, floatBits(imag(c)))
	case reflect.String:
		w.str(d, v.String())
	case reflect.Interface:
		return w.write(d, v.Elem())
	case reflect.Pointer:
		leave, err := w.enter(v, 0)
		if err != nil {
			return err
		}
		defer leave()
		return w.write(d, v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 && v.Kind() == reflect.Slice {
			w.tag(d, tagBytes, uint64(v.Len()))
			_, _ = d.Write(v.Bytes())
			return nil
		}
		if v.Kind() == reflect.Slice && v.Len() > 0 {
			leave, err := w.enter(v, v.Len())
			if err != nil {
				return err
			}
			defer leave()
		}
		w.tag(d, tagList, uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			if err := w.write(d, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		return w.writeMap(d, v)
	case reflect.Struct:
		t := v.Type()
		w.tag(d, tagStruct, uint64(t.NumField()))
		w.str(d, t.String())
		for i := 0; i < t.NumField(); i++ {
			w.str(d, t.Field(i).Name)
			if err := w.write(d, v.Field(i)); err != nil {
				return err
			}
		}
	default:
		return &NonHashableError{Type: v.Type().String(), Reason: "unsupported kind " + v.Kind().String()}
	}
	return nil
}

// writeMap combines per-entry digests in sorted order so that iteration order never
// leaks into the result.
func (w *walker) writeMap(d *xxhash.Digest, v reflect.Value) error {
	leave, err := w.enter(v, 0)
	if err != nil {
		return err
	}
	defer leave()

	entries := make([]uint64, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		ed := xxhash.New()
		if err := w.write(ed, iter.Key()); err != nil {
			return err
		}
		if err := w.write(ed, iter.Value()); err != nil {
			return err
		}
		entries = append(entries, ed.Sum64())
	}
	slices.Sort(entries)

	w.tag(d, tagMap, uint64(len(entries)))
	for _, e := range entries {
		w.tag(d, tagMap, e)
	}
	return nil
}

func floatBits(f float64) uint64 {
	if f == 0 {
		// +0 and -0 compare equal, so they must hash equal.
		return 0
	}
	return math.Float64bits(f)
}
