package core

import (
	"fmt"

	"resourcesync/pkg/domain"
)

// Target is what a handle is bound to: the store address it subscribes to
// and how the delivered snapshots are presented.
type Target struct {
	Address domain.Address
	// Selector orders collection results; All keeps the store order and
	// SelectIDs restores the listed order, duplicates included.
	Selector domain.Selector
	// Single presents the first collection result as the handle's resource.
	Single bool
}

// DocTarget targets a single document.
func DocTarget(path domain.EntityPath, id string) Target {
	return Target{Address: domain.Doc(path, id), Selector: domain.SelectID(id)}
}

// ListTarget targets the documents of path matching every constraint.
func ListTarget(path domain.EntityPath, constraints ...domain.Constraint) Target {
	return Target{Address: domain.Collection(path, constraints...), Selector: domain.All}
}

// Equal reports whether two targets would open the same subscription and
// present it the same way.
func (t Target) Equal(o Target) bool {
	return t.Single == o.Single && t.Address.Equal(o.Address)
}

// String implements fmt.Stringer.
func (t Target) String() string {
	if t.Single {
		return t.Address.String() + " (first)"
	}
	return t.Address.String()
}

// ResolveIDs turns a selector into concrete ids. A single id becomes a
// one-element list, an explicit list is kept as is and All (or nil) yields
// defaultFullSet unchanged.
func ResolveIDs(sel domain.Selector, defaultFullSet []string) []string {
	switch s := sel.(type) {
	case domain.SelectID:
		return []string{string(s)}
	case domain.SelectIDs:
		return append([]string(nil), s...)
	default:
		return defaultFullSet
	}
}

// RelationTarget computes the target of relation def for the owner document.
func RelationTarget(def domain.RelationDefinition, ownerID string, owner domain.Fields) (Target, error) {
	switch d := def.(type) {
	case domain.ToOne:
		return toOneTarget(d, ownerID, owner), nil
	case domain.ToMany:
		return toManyTarget(d, ownerID, owner), nil
	default:
		return Target{}, fmt.Errorf("unsupported relation definition %T", def)
	}
}

func toOneTarget(d domain.ToOne, ownerID string, owner domain.Fields) Target {
	sel := d.Resolve(ownerID, owner)
	if sel == nil || domain.IsAll(sel) {
		var filter []domain.Constraint
		if d.DefaultFilter != nil {
			filter = d.DefaultFilter(ownerID, owner)
		}
		return Target{Address: domain.Collection(d.Target, filter...), Selector: domain.All, Single: true}
	}
	ids := ResolveIDs(sel, nil)
	if len(ids) == 0 || ids[0] == "" {
		return Target{Address: domain.Collection(d.Target, domain.IDIn(nil)), Selector: domain.SelectIDs(nil), Single: true}
	}
	return DocTarget(d.Target, ids[0])
}

func toManyTarget(d domain.ToMany, ownerID string, owner domain.Fields) Target {
	sel := d.Resolve(ownerID, owner)
	if sel == nil || domain.IsAll(sel) {
		return ListTarget(d.Target, d.DefaultFilter(ownerID, owner)...)
	}
	ids := ResolveIDs(sel, nil)
	return Target{Address: domain.Collection(d.Target, domain.IDIn(ids)), Selector: domain.SelectIDs(ids)}
}
