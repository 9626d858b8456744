package event

import "encoding/json"

// Opt is a payload field that remembers whether it was present on the wire.
// Patch payloads use it to merge only the fields the server sent; an
// explicit null counts as present.
type Opt[T any] struct {
	Set   bool
	Value T
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] { return Opt[T]{Set: true, Value: v} }

// UnmarshalJSON implements [json.Unmarshaler].
func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	return json.Unmarshal(b, &o.Value)
}

// MarshalJSON implements [json.Marshaler].
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Apply assigns the value to dst when the field was present.
func (o Opt[T]) Apply(dst *T) {
	if o.Set {
		*dst = o.Value
	}
}
