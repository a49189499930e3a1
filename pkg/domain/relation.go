package domain

import "fmt"

// RelationKind distinguishes to-one and to-many relations.
type RelationKind string

// Relation kinds.
const (
	KindToOne  RelationKind = "toOne"
	KindToMany RelationKind = "toMany"
)

// ResolveFunc derives the selector of related entities from an owner document.
type ResolveFunc func(ownerID string, owner Fields) Selector

// FilterFunc derives the default filter used when a relation resolves to All.
type FilterFunc func(ownerID string, owner Fields) []Constraint

// RelationDefinition is the closed set of relation variants: ToOne and ToMany.
// Callers switch over the concrete types.
type RelationDefinition interface {
	Kind() RelationKind
	TargetPath() EntityPath
	isRelation()
}

// ToOne relates an owner to at most one target entity.
type ToOne struct {
	Target  EntityPath
	Resolve ResolveFunc
	// DefaultFilter is consulted only when Resolve returns All; the first match wins.
	DefaultFilter FilterFunc
}

// ToMany relates an owner to an ordered list of target entities.
type ToMany struct {
	Target        EntityPath
	Resolve       ResolveFunc
	DefaultFilter FilterFunc
}

// Kind implements RelationDefinition.
func (ToOne) Kind() RelationKind { return KindToOne }

// TargetPath implements RelationDefinition.
func (r ToOne) TargetPath() EntityPath { return r.Target }

func (ToOne) isRelation() {}

// Kind implements RelationDefinition.
func (ToMany) Kind() RelationKind { return KindToMany }

// TargetPath implements RelationDefinition.
func (r ToMany) TargetPath() EntityPath { return r.Target }

func (ToMany) isRelation() {}

// BelongsTo relates an owner to the target whose id is stored in field.
func BelongsTo(target EntityPath, field string) ToOne {
	return ToOne{
		Target: target,
		Resolve: func(_ string, owner Fields) Selector {
			return SelectID(stringField(owner, field))
		},
	}
}

// HasMany relates an owner to every target whose foreignKey equals the owner id.
func HasMany(target EntityPath, foreignKey string) ToMany {
	return ToMany{
		Target:        target,
		Resolve:       func(string, Fields) Selector { return All },
		DefaultFilter: ForeignKey(foreignKey),
	}
}

// HasManyIDs relates an owner to the ordered ids denormalized in listField.
// When the owner carries no such field the relation falls back to the
// foreignKey filter; an empty foreignKey yields an empty relation instead.
func HasManyIDs(target EntityPath, listField, foreignKey string) ToMany {
	rel := ToMany{
		Target: target,
		Resolve: func(_ string, owner Fields) Selector {
			if ids, ok := StringList(owner[listField]); ok {
				return SelectIDs(ids)
			}
			if foreignKey == "" {
				return SelectIDs(nil)
			}
			return All
		},
	}
	if foreignKey != "" {
		rel.DefaultFilter = ForeignKey(foreignKey)
	} else {
		rel.DefaultFilter = func(string, Fields) []Constraint { return []Constraint{IDIn(nil)} }
	}
	return rel
}

// ForeignKey returns a filter matching targets whose field equals the owner id.
func ForeignKey(field string) FilterFunc {
	return func(ownerID string, _ Fields) []Constraint {
		return []Constraint{Eq(field, ownerID)}
	}
}

// StringList converts a stored list field into ids. It accepts []string and
// []any holding strings (the shape produced by JSON-backed stores).
func StringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func stringField(f Fields, field string) string {
	switch v := f[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
