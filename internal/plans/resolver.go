package plans

// Resolver selects the tier that applies to a request.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the tier named by hint when the catalog knows it, and the
// default tier otherwise. An empty hint means no hint was supplied.
func (r *Resolver) Resolve(hint string) Tier {
	if hint != "" && r.catalog.Has(hint) {
		return r.catalog.Lookup(hint)
	}
	return r.catalog.Default()
}

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}
