package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

// Member is one key/value pair of an object. Members keep document order.
type Member struct {
	Key   string
	Value Value
}

// Value is a decoded JSON document as a tagged tree.
type Value struct {
	Kind    Kind
	Str     string
	Num     json.Number
	Bool    bool
	Items   []Value
	Members []Member
}

// ParseError reports a payload that is not structured data at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("result payload is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Field returns the first member named key.
func (v Value) Field(key string) (Value, bool) {
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// StringField returns the member named key when it holds a string.
func (v Value) StringField(key string) (string, bool) {
	f, ok := v.Field(key)
	if !ok || f.Kind != KindString {
		return "", false
	}
	return f.Str, true
}

// Truthy reports whether the value is set to something other than null,
// false, zero or the empty string.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindString:
		return v.Str != ""
	case KindNumber:
		f, err := v.Num.Float64()
		return err != nil || f != 0
	case KindBool:
		return v.Bool
	default:
		return true
	}
}

// IsContainer reports whether the value is an object or an array.
func (v Value) IsContainer() bool {
	return v.Kind == KindObject || v.Kind == KindArray
}

// String builds a string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Parse decodes data into a Value, keeping object member order.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, &ParseError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return Value{}, &ParseError{Err: err}
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case string:
		return String(t), nil
	case json.Number:
		return Value{Kind: KindNumber, Num: t}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case json.Delim:
		switch t {
		case '{':
			obj := Value{Kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, want string", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Members = append(obj.Members, Member{Key: key, Value: member})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		case '[':
			arr := Value{Kind: KindArray}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr.Items = append(arr.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return arr, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// FromAny converts values produced by encoding/json (maps, slices, scalars) into a Value.
// Map keys are sorted since Go maps carry no order.
func FromAny(in any) Value {
	switch t := in.(type) {
	case nil:
		return Value{Kind: KindNull}
	case string:
		return String(t)
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case json.Number:
		return Value{Kind: KindNumber, Num: t}
	case float64:
		return Value{Kind: KindNumber, Num: json.Number(fmt.Sprint(t))}
	case int:
		return Value{Kind: KindNumber, Num: json.Number(fmt.Sprint(t))}
	case []any:
		arr := Value{Kind: KindArray}
		for _, item := range t {
			arr.Items = append(arr.Items, FromAny(item))
		}
		return arr
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := Value{Kind: KindObject}
		for _, k := range keys {
			obj.Members = append(obj.Members, Member{Key: k, Value: FromAny(t[k])})
		}
		return obj
	default:
		return String(fmt.Sprint(t))
	}
}

// Visitor is called for every object node in pre-order together with the key
// that led to it. The root and array elements directly under the root get "".
type Visitor func(context string, node Value)

// Walk traverses v depth-first. Array elements get their index as context.
func Walk(v Value, visit Visitor) {
	walk(v, "", visit)
}

func walk(v Value, context string, visit Visitor) {
	switch v.Kind {
	case KindObject:
		visit(context, v)
		for _, m := range v.Members {
			if m.Value.IsContainer() {
				walk(m.Value, m.Key, visit)
			}
		}
	case KindArray:
		for i, item := range v.Items {
			if item.IsContainer() {
				walk(item, strconv.Itoa(i), visit)
			}
		}
	}
}
