package domain

// Selector is the value a relation resolves to before concrete ids are
// computed. It is a closed set: SelectID, SelectIDs and All.
type Selector interface {
	isSelector()
}

// SelectID selects exactly one related id.
type SelectID string

// SelectIDs selects an explicit ordered list of ids; duplicates are meaningful.
type SelectIDs []string

type selectAll struct{}

// All selects every entity of the target path matching the relation's default filter.
var All Selector = selectAll{}

func (SelectID) isSelector()  {}
func (SelectIDs) isSelector() {}
func (selectAll) isSelector() {}

// IsAll reports whether s is the All sentinel.
func IsAll(s Selector) bool {
	_, ok := s.(selectAll)
	return ok
}
