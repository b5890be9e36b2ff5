package extension

import (
	"slices"
	"strings"
)

// Requirement selects records whose field holds the given value
type Requirement struct {
	Field string
	Value string
}

// Equal builds an equality requirement on a field
func Equal(field, value string) Requirement {
	return Requirement{Field: field, Value: value}
}

// Order sorts records by a field
type Order struct {
	Field      string
	Descending bool
}

// Asc sorts by field ascending
func Asc(field string) Order {
	return Order{Field: field}
}

// Desc sorts by field descending
func Desc(field string) Order {
	return Order{Field: field, Descending: true}
}

// ListOptions narrows and orders a List call. All requirements must match.
type ListOptions struct {
	FieldSelector []Requirement
	Sort          []Order
}

// Matches reports whether a record satisfies every requirement.
// Multi-valued fields match when any value is equal.
func (o ListOptions) Matches(rec Record) bool {
	for _, req := range o.FieldSelector {
		if !slices.Contains(rec.Fields[req.Field], req.Value) {
			return false
		}
	}
	return true
}

// Apply filters and sorts records in place and returns the selected slice
func (o ListOptions) Apply(records []Record) []Record {
	selected := records[:0]
	for _, rec := range records {
		if o.Matches(rec) {
			selected = append(selected, rec)
		}
	}
	slices.SortStableFunc(selected, o.compare)
	return selected
}

func (o ListOptions) compare(a, b Record) int {
	for _, order := range o.Sort {
		c := compareField(a, b, order.Field)
		if c == 0 {
			continue
		}
		if order.Descending {
			return -c
		}
		return c
	}
	return 0
}

func compareField(a, b Record, field string) int {
	switch field {
	case FieldName:
		return strings.Compare(a.Name, b.Name)
	case FieldCreationTimestamp:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return strings.Compare(firstValue(a, field), firstValue(b, field))
}

func firstValue(rec Record, field string) string {
	if values := rec.Fields[field]; len(values) > 0 {
		return values[0]
	}
	return ""
}
