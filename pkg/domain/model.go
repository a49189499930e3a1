// Package domain defines the value types shared by the resource synchronization
// engine and its storage drivers: entity paths, target addresses, constraints,
// document snapshots, relation definitions and the document store contract.
package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EntityPath identifies a class of stored entities (for example "guilds").
type EntityPath string

// Fields is the untyped field map stored for one document.
type Fields map[string]any

// Reserved field names stamped by the write path.
const (
	// FieldCreatedAt holds the creation timestamp of a document.
	FieldCreatedAt = "createdAt"
	// FieldModifiedAt holds the last modification timestamp of a document.
	FieldModifiedAt = "modifiedAt"
	// IDField addresses the document id inside a constraint.
	IDField = "__id__"
)

// Operator is the comparison used by a Constraint.
type Operator string

// Supported constraint operators.
const (
	OpEqual         Operator = "=="
	OpIn            Operator = "in"
	OpArrayContains Operator = "array-contains"
)

// Valid reports whether the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpIn, OpArrayContains:
		return true
	default:
		return false
	}
}

// Constraint is one equality or membership filter of a collection address.
type Constraint struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// Eq builds an equality constraint.
func Eq(field string, value any) Constraint {
	return Constraint{Field: field, Op: OpEqual, Value: value}
}

// In builds a membership constraint; values must be a slice.
func In(field string, values any) Constraint {
	return Constraint{Field: field, Op: OpIn, Value: values}
}

// Contains builds an array-contains constraint.
func Contains(field string, value any) Constraint {
	return Constraint{Field: field, Op: OpArrayContains, Value: value}
}

// IDIn builds a membership constraint on document ids.
func IDIn(ids []string) Constraint {
	return Constraint{Field: IDField, Op: OpIn, Value: append([]string(nil), ids...)}
}

func (c Constraint) key() string {
	return strconv.Quote(c.Field) + " " + string(c.Op) + " " + canonical(c.Value)
}

// Equal reports whether both constraints filter the same field with the same
// operator and an equal value.
func (c Constraint) Equal(o Constraint) bool {
	return c.Field == o.Field && c.Op == o.Op && ValuesEqual(c.Value, o.Value)
}

func (c Constraint) String() string {
	return c.key()
}

// Matches reports whether a document with the given id and data satisfies the constraint.
func (c Constraint) Matches(id string, data Fields) bool {
	var (
		field any
		ok    bool
	)
	if c.Field == IDField {
		field, ok = id, true
	} else {
		field, ok = data[c.Field]
	}
	if !ok {
		return false
	}
	switch c.Op {
	case OpEqual:
		return ValuesEqual(field, c.Value)
	case OpIn:
		return sliceContains(c.Value, field)
	case OpArrayContains:
		return sliceContains(field, c.Value)
	default:
		return false
	}
}

// Address is a target address: a single document (ID set) or a filtered
// collection (ordered Constraints, possibly empty).
type Address struct {
	Path        EntityPath   `json:"path"`
	ID          string       `json:"id,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Doc returns a single-document address.
func Doc(path EntityPath, id string) Address {
	return Address{Path: path, ID: id}
}

// Collection returns a filtered-collection address.
func Collection(path EntityPath, constraints ...Constraint) Address {
	return Address{Path: path, Constraints: append([]Constraint(nil), constraints...)}
}

// IsDocument reports whether the address targets a single document.
func (a Address) IsDocument() bool {
	return a.ID != ""
}

// Key returns the canonical string form of the address. Field names are
// quoted so distinct constraint lists never share a key.
func (a Address) Key() string {
	if a.IsDocument() {
		return string(a.Path) + "/" + a.ID
	}
	parts := make([]string, len(a.Constraints))
	for i, c := range a.Constraints {
		parts[i] = c.key()
	}
	return string(a.Path) + "?" + strings.Join(parts, "&")
}

func (a Address) String() string {
	return a.Key()
}

// Equal reports identity-equality: same path, same id and structurally equal
// ordered constraint lists.
func (a Address) Equal(b Address) bool {
	if a.Path != b.Path || a.ID != b.ID || len(a.Constraints) != len(b.Constraints) {
		return false
	}
	for i := range a.Constraints {
		if !a.Constraints[i].Equal(b.Constraints[i]) {
			return false
		}
	}
	return true
}

// Validate checks the address is usable against a store.
func (a Address) Validate() error {
	if a.Path == "" {
		return fmt.Errorf("%w: empty entity path", ErrInvalidAddress)
	}
	if a.IsDocument() && len(a.Constraints) > 0 {
		return fmt.Errorf("%w: %s has both an id and constraints", ErrInvalidAddress, a.Path)
	}
	for _, c := range a.Constraints {
		if c.Field == "" {
			return fmt.Errorf("%w: %s has a constraint without field", ErrInvalidAddress, a.Path)
		}
		if !c.Op.Valid() {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidAddress, c.Op)
		}
		if c.Op == OpIn && !isSlice(c.Value) {
			return fmt.Errorf("%w: %q requires a list value", ErrInvalidAddress, c.Op)
		}
	}
	return nil
}

// Matches reports whether a document belongs to the address.
func (a Address) Matches(id string, data Fields) bool {
	if a.IsDocument() {
		return a.ID == id
	}
	for _, c := range a.Constraints {
		if !c.Matches(id, data) {
			return false
		}
	}
	return true
}

// Snapshot is the state of one document at a point in time.
type Snapshot struct {
	ID     string `json:"id"`
	Exists bool   `json:"exists"`
	Data   Fields `json:"data,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	s.Data = CloneFields(s.Data)
	return s
}

// IDs returns the ids of the existing snapshots in order.
func IDs(snapshots []Snapshot) []string {
	out := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Exists {
			out = append(out, s.ID)
		}
	}
	return out
}

// CloneFields deep copies nested maps and slices of a field map.
func CloneFields(in Fields) Fields {
	if in == nil {
		return nil
	}
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return CloneFields(t)
	case map[string]any:
		return map[string]any(CloneFields(Fields(t)))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// ValuesEqual compares two field values by their canonical JSON form so that
// values read back from a JSON-backed store compare equal to native literals.
func ValuesEqual(a, b any) bool {
	return canonical(a) == canonical(b)
}

// SortedKeys returns the keys of a field map in ascending order.
func SortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func canonical(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func sliceContains(list, needle any) bool {
	if !isSlice(list) {
		return false
	}
	rv := reflect.ValueOf(list)
	for i := 0; i < rv.Len(); i++ {
		if ValuesEqual(rv.Index(i).Interface(), needle) {
			return true
		}
	}
	return false
}
