package query

import (
	"fmt"
	"strings"
)

// Direction represents a sort direction
type Direction int

const (
	// Ascending sorts smallest first
	Ascending Direction = iota
	// Descending sorts largest first
	Descending
)

// String returns the string representation of the direction
func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection converts a string to a Direction. Matching is
// case-insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC", "":
		return Ascending, nil
	case "DESC":
		return Descending, nil
	default:
		return 0, fmt.Errorf("unknown sort direction: %s", s)
	}
}

// Order is a single (attribute, direction) pair
type Order struct {
	Attr      string
	Direction Direction
}

// String renders the order as "attr,DIRECTION"
func (o Order) String() string {
	return o.Attr + "," + o.Direction.String()
}

// Sort is an ordered list of sort orders
type Sort struct {
	Orders []Order
}

// NewSort creates a sort on a single attribute
func NewSort(attr string, direction Direction) *Sort {
	return &Sort{Orders: []Order{{Attr: attr, Direction: direction}}}
}

// On appends an order and returns the sort for chaining
func (s *Sort) On(attr string, direction Direction) *Sort {
	s.Orders = append(s.Orders, Order{Attr: attr, Direction: direction})
	return s
}

// String renders the sort as semicolon-separated orders
func (s *Sort) String() string {
	parts := make([]string, len(s.Orders))
	for i, o := range s.Orders {
		parts[i] = o.String()
	}
	return strings.Join(parts, ";")
}

// ParseSort parses the external sort syntax: "attr,ASC|DESC" pairs separated
// by semicolons. The direction may be omitted and defaults to ascending.
func ParseSort(s string) (*Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	sort := &Sort{}
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		attr := pair
		dir := Ascending
		if idx := strings.Index(pair, ","); idx >= 0 {
			attr = strings.TrimSpace(pair[:idx])
			var err error
			dir, err = ParseDirection(pair[idx+1:])
			if err != nil {
				return nil, err
			}
		}
		if attr == "" {
			return nil, fmt.Errorf("sort order is missing an attribute: %q", pair)
		}
		sort.Orders = append(sort.Orders, Order{Attr: attr, Direction: dir})
	}
	if len(sort.Orders) == 0 {
		return nil, nil
	}
	return sort, nil
}
