package models

import (
	"bytes"
	"encoding/json"
)

// Provenance column names added to every record before it reaches a sink.
const (
	FieldSourceFile          = "source_file"
	FieldClassification      = "classification"
	FieldBroadClassification = "broad_classification"

	// FieldChildren holds entities nested below the flattened properties.
	// Flatten never claims it for an entity.
	FieldChildren = "children"
)

// Child is an entity kept below the first level of properties. Parent is the
// record key (or child type) it hangs from.
type Child struct {
	Parent string `json:"parent"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

// Record is a flat field name to value mapping that remembers the order in
// which keys were first set.
type Record struct {
	keys   []string
	values map[string]string

	// Nested holds entities found below the first level of properties,
	// keyed by the field name of the property that owns them.
	Nested map[string][]Entity
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]string)}
}

// Set assigns value to key. A new key is appended to the key order; an
// existing key keeps its position and has its value replaced.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it is present.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Map returns a copy of the fields as a plain map.
func (r *Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// AddNested stores deeper entities under the owning field name.
func (r *Record) AddNested(key string, entities []Entity) {
	if len(entities) == 0 {
		return
	}
	if r.Nested == nil {
		r.Nested = make(map[string][]Entity)
	}
	r.Nested[key] = append(r.Nested[key], entities...)
}

// Children returns the nested entities depth first, ordered by the key that
// owns them. Entities below a child list that child's type as their parent.
func (r *Record) Children() []Child {
	var out []Child
	var walk func(parent string, entities []Entity)
	walk = func(parent string, entities []Entity) {
		for _, e := range entities {
			out = append(out, Child{Parent: parent, Type: e.Type, Value: e.Value()})
			walk(e.Type, e.Properties)
		}
	}
	for _, k := range r.keys {
		walk(k, r.Nested[k])
	}
	return out
}

// Document returns the fields plus, when present, the children under
// FieldChildren as a list of maps.
func (r *Record) Document() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values)+1)
	for k, v := range r.values {
		out[k] = v
	}
	if children := r.Children(); len(children) > 0 {
		list := make([]interface{}, 0, len(children))
		for _, c := range children {
			list = append(list, map[string]interface{}{"parent": c.Parent, "type": c.Type, "value": c.Value})
		}
		out[FieldChildren] = list
	}
	return out
}

// MarshalJSON writes the fields as a JSON object in insertion order, followed
// by the children under FieldChildren.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	if children := r.Children(); len(children) > 0 {
		cb, err := json.Marshal(children)
		if err != nil {
			return nil, err
		}
		if len(r.keys) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"` + FieldChildren + `":`)
		buf.Write(cb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
