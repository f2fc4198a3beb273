package document

import (
	"encoding/json"
	"math/big"
	"reflect"
)

// Kind is the structural type of a document value
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindNull    Kind = "null"
	KindUnknown Kind = "unknown"
)

// Kinds lists every kind a schema may name
var Kinds = []Kind{KindString, KindInteger, KindFloat, KindBoolean, KindArray, KindObject, KindNull}

// ParseKind returns the kind named by token
func ParseKind(token string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == token {
			return k, true
		}
	}
	return KindUnknown, false
}

// KindOf classifies v. Booleans are never integers, and a json.Number is an
// integer only when it has no fraction or exponent, whatever its magnitude.
func KindOf(v interface{}) Kind {
	switch n := v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case bool:
		return KindBoolean
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return KindInteger
		}
		if _, ok := new(big.Int).SetString(n.String(), 10); ok {
			return KindInteger
		}
		return KindFloat
	case *big.Int:
		if n == nil {
			return KindNull
		}
		return KindInteger
	case map[string]interface{}:
		return KindObject
	case []interface{}:
		return KindArray
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return KindInteger
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBoolean
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindObject
		}
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return KindNull
		}
		return KindOf(rv.Elem().Interface())
	}
	return KindUnknown
}

// IsNumber reports whether v is an integer or a float
func IsNumber(v interface{}) bool {
	k := KindOf(v)
	return k == KindInteger || k == KindFloat
}

// ToFloat converts any numeric document value to float64
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
