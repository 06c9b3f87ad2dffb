package validate

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// numberExtension decodes builtin integer and float fields from JSON numbers
// or numeric strings such as "3". Booleans, objects and fractional values for
// integer fields are decode errors.
type numberExtension struct {
	jsoniter.DummyExtension
}

func (*numberExtension) CreateDecoder(typ reflect2.Type) jsoniter.ValDecoder {
	// Named types keep their own decoding.
	if typ.Type1().PkgPath() != "" {
		return nil
	}
	bits := int(typ.Type1().Size()) * 8
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &integerDecoder{kind: typ.Kind(), bits: bits}
	case reflect.Float32, reflect.Float64:
		return &floatDecoder{bits: bits}
	}
	return nil
}

type integerDecoder struct {
	kind reflect.Kind
	bits int
}

func (d *integerDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	raw, ok := readNumber(iter, "integer")
	if !ok {
		return
	}
	n, err := strconv.ParseInt(raw, 10, d.bits)
	if err != nil {
		// 3.0 and 3e0 are integers too.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
			iter.ReportError("decode integer", "not an integer")
			return
		}
		n = int64(f)
		if hi := n >> (d.bits - 1); hi != 0 && hi != -1 {
			iter.ReportError("decode integer", "out of range")
			return
		}
	}

	switch d.kind {
	case reflect.Int:
		*(*int)(ptr) = int(n)
	case reflect.Int8:
		*(*int8)(ptr) = int8(n)
	case reflect.Int16:
		*(*int16)(ptr) = int16(n)
	case reflect.Int32:
		*(*int32)(ptr) = int32(n)
	default:
		*(*int64)(ptr) = n
	}
}

type floatDecoder struct {
	bits int
}

func (d *floatDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	raw, ok := readNumber(iter, "number")
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(raw, d.bits)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		iter.ReportError("decode number", "not a number")
		return
	}
	if d.bits == 32 {
		*(*float32)(ptr) = float32(f)
		return
	}
	*(*float64)(ptr) = f
}

// readNumber returns the literal text of a number or numeric string. A null
// leaves the target untouched.
func readNumber(iter *jsoniter.Iterator, kind string) (string, bool) {
	switch iter.WhatIsNext() {
	case jsoniter.NumberValue:
		return string(iter.ReadNumber()), true
	case jsoniter.StringValue:
		return strings.TrimSpace(iter.ReadString()), true
	case jsoniter.NilValue:
		iter.ReadNil()
		return "", false
	default:
		iter.Skip()
		iter.ReportError("decode "+kind, "unexpected "+kind+" value")
		return "", false
	}
}

// jsonName maps a Go field name reported by the decoder back to its json key.
func jsonName(dst any, goName string) string {
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return goName
	}
	f, ok := t.FieldByName(goName)
	if !ok {
		return goName
	}
	if name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
		return name
	}
	return goName
}
