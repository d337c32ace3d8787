package domain

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EventData is an insertion-ordered key/value map. It marshals to a JSON
// object whose members keep insertion order. The zero value is empty, and
// With never mutates its receiver.
type EventData struct {
	m *orderedmap.OrderedMap[string, any]
}

// With returns a copy of d with key set to value. An existing key keeps its
// position and takes the new value.
func (d EventData) With(key string, value any) EventData {
	out := orderedmap.New[string, any]()
	if d.m != nil {
		for pair := d.m.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}
	out.Set(key, value)
	return EventData{m: out}
}

// Get returns the value stored under key.
func (d EventData) Get(key string) (any, bool) {
	if d.m == nil {
		return nil, false
	}
	return d.m.Get(key)
}

func (d EventData) Len() int {
	if d.m == nil {
		return 0
	}
	return d.m.Len()
}

// IsZero reports whether d has no entries; `omitzero` fields drop it.
func (d EventData) IsZero() bool { return d.Len() == 0 }

// Keys returns the keys in insertion order.
func (d EventData) Keys() []string {
	keys := make([]string, 0, d.Len())
	if d.m == nil {
		return keys
	}
	for pair := d.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (d EventData) MarshalJSON() ([]byte, error) {
	if d.m == nil {
		return []byte("{}"), nil
	}
	return d.m.MarshalJSON()
}
