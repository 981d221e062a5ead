package query

// Fetch is a nested attribute projection applied to query results. A nil
// sub-fetch on an included attribute means the backend's default shape for
// that attribute.
type Fetch struct {
	attrs map[string]*Fetch
	order []string
}

// NewFetch creates an empty fetch
func NewFetch() *Fetch {
	return &Fetch{attrs: make(map[string]*Fetch)}
}

// Field includes an attribute without a sub-fetch
func (f *Fetch) Field(attr string) *Fetch {
	return f.Sub(attr, nil)
}

// Sub includes an attribute with a nested fetch for its referenced entity
func (f *Fetch) Sub(attr string, sub *Fetch) *Fetch {
	if _, exists := f.attrs[attr]; !exists {
		f.order = append(f.order, attr)
	}
	f.attrs[attr] = sub
	return f
}

// Includes reports whether the attribute is part of the projection
func (f *Fetch) Includes(attr string) bool {
	if f == nil {
		return true
	}
	_, ok := f.attrs[attr]
	return ok
}

// Get returns the sub-fetch for an attribute, which may be nil
func (f *Fetch) Get(attr string) *Fetch {
	if f == nil {
		return nil
	}
	return f.attrs[attr]
}

// Attrs returns the included attribute names in insertion order
func (f *Fetch) Attrs() []string {
	if f == nil {
		return nil
	}
	return f.order
}
