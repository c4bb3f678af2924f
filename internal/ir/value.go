package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface over the value kinds chainvault can store,
// hash and pass to contracts: the JSON data model with integers kept apart
// from fractional numbers.
type IRValue interface {
	irValue()
}

// IRNull is JSON null.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat is a number that does not fit IRInt: it has a fractional part or
// lies outside the int64 range. It must be finite. Whole values in range are
// decoded as IRInt, so a float never round-trips into a different kind.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values. Iterate with SortedKeys for a
// deterministic order.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// SortedKeys returns the keys in RFC 8785 order (UTF-16 code units).
// sort.Strings orders by UTF-8 bytes, which differs for astral characters.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// Clone returns a deep copy of the object.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// String returns the string field key, or false if it is absent or not a string.
func (obj IRObject) String(key string) (string, bool) {
	s, ok := obj[key].(IRString)
	return string(s), ok
}

// Int returns the integer field key, or false if it is absent or not an int.
func (obj IRObject) Int(key string) (int64, bool) {
	n, ok := obj[key].(IRInt)
	return int64(n), ok
}

// Bool returns the boolean field key, or false if it is absent or not a bool.
func (obj IRObject) Bool(key string) (bool, bool) {
	b, ok := obj[key].(IRBool)
	return bool(b), ok
}

// Object returns the nested object at key, or false if absent or not an object.
func (obj IRObject) Object(key string) (IRObject, bool) {
	o, ok := obj[key].(IRObject)
	return o, ok
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := decodeRaw(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := decodeRaw(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// decodeRaw decodes one JSON value.
func decodeRaw(data []byte) (IRValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil
	case 'n':
		return IRNull{}, nil
	case '[':
		var arr IRArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	case '{':
		var obj IRObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return fromNumber(n)
	}
}

// MarshalJSON implements json.Marshaler for IRObject. Keys are sorted but
// this is not the canonical form; use MarshalCanonical for hashing.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRArray.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals any IRValue to plain JSON.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRFloat:
		if !finite(float64(val)) {
			return nil, fmt.Errorf("non-finite number: %v", float64(val))
		}
		return appendNumber(nil, float64(val)), nil
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue parses external JSON into an IRValue. Integers beyond
// the int64 range are rejected rather than rounded.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return ToIRValue(raw)
}

// ToIRValue converts a generic Go value, as produced by encoding/json or
// yaml.v3 decoding into `any`, into an IRValue.
//
// Generic decoders produce float64 for every JSON number, so whole values in
// the int64 range become IRInt and the rest IRFloat. NaN and infinities are
// rejected.
func ToIRValue(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case float64:
		return fromFloat(val)
	case float32:
		return fromFloat(float64(val))
	case json.Number:
		return fromNumber(val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := ToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := ToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromNumber converts a JSON number literal. Literals without a fraction or
// exponent must fit int64; the rest go through fromFloat.
func fromNumber(n json.Number) (IRValue, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IRInt(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number out of range: %s", s)
	}
	return fromFloat(f)
}

// fromFloat maps whole values in [MinInt64, MaxInt64] to IRInt. float64(MaxInt64)
// is 2^63, one past the range, hence the strict upper bound.
func fromFloat(f float64) (IRValue, error) {
	if !finite(f) {
		return nil, fmt.Errorf("non-finite number: %v", f)
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return IRInt(int64(f)), nil
	}
	return IRFloat(f), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ToIRObject is ToIRValue for callers that require an object.
func ToIRObject(m map[string]any) (IRObject, error) {
	if m == nil {
		return IRObject{}, nil
	}
	v, err := ToIRValue(m)
	if err != nil {
		return nil, err
	}
	return v.(IRObject), nil
}

// ToGo converts an IRValue back to plain Go values (string, int64, float64,
// bool, []any, map[string]any, nil). Used for human-facing output.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRFloat:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
