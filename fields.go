package runboard

import (
	"bytes"
	"encoding/json"
)

// Field carries the missing/null/value distinction PATCH bodies need: a key
// absent from the JSON leaves Set false, an explicit null sets Set with Null,
// and a value sets both Set and Value.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// FieldOf wraps a concrete value, mostly for building updates in code.
func FieldOf[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// NullField represents an explicit null.
func NullField[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// UnmarshalJSON implements json.Unmarshaler. It only runs when the key is
// present, so Set is true for both values and explicit nulls.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(data, []byte("null")) {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// MarshalJSON implements json.Marshaler.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}
