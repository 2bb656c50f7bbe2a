// Package provider defines the lookup-provider contract and the registry
// that dispatches searches to configured adapters.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/bondline/skiptrace/internal/model"
)

// SearchParams is the free-form identity payload assembled from a
// subject's case record. Empty fields are omitted by adapters.
type SearchParams struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	DOB         string `json:"dob,omitempty"`
	StreetLine1 string `json:"street_line_1,omitempty"`
	City        string `json:"city,omitempty"`
	StateCode   string `json:"state_code,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// HasName reports whether the params carry enough of a name to search:
// a full name, or both first and last.
func (p SearchParams) HasName() bool {
	if p.FullName != "" {
		return true
	}
	return p.FirstName != "" && p.LastName != ""
}

// SearchResult is the adapter-mapped outcome of one provider search.
// Candidate scores are still in the provider's native scale.
type SearchResult struct {
	Status     string            `json:"status"`
	Candidates []model.Candidate `json:"candidates"`
}

// Searcher is one configured provider adapter. Implementations own their
// request/response mapping and their own throttling; the registry only
// dispatches by id.
type Searcher interface {
	ID() string
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
}

// ErrUnknownProvider is returned for ids that are not configured.
var ErrUnknownProvider = eris.New("provider: unknown provider id")

// Registry holds the configured providers and their static descriptors.
// It carries no run-time results; those belong to the enrichment cache.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]model.Provider
	searchers   map[string]Searcher
	order       []string
	defaultID   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]model.Provider),
		searchers:   make(map[string]Searcher),
	}
}

// Register adds a provider descriptor with its adapter. Registering the
// same id twice replaces the previous entry.
func (r *Registry) Register(desc model.Provider, s Searcher) error {
	if desc.ID == "" {
		return eris.New("provider: descriptor missing id")
	}
	if s != nil && s.ID() != desc.ID {
		return eris.Errorf("provider: adapter id %q does not match descriptor %q", s.ID(), desc.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[desc.ID]; !exists {
		r.order = append(r.order, desc.ID)
	}
	r.descriptors[desc.ID] = desc
	r.searchers[desc.ID] = s
	if desc.Default {
		r.defaultID = desc.ID
	}
	return nil
}

// SetDefault marks the given provider as the default.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descriptors[id]; !ok {
		return eris.Wrapf(ErrUnknownProvider, "%s", id)
	}
	r.defaultID = id
	return nil
}

// List returns all configured providers in registration order, with the
// default flag set on exactly one (the configured default, or the first
// registered when none is configured).
func (r *Registry) List() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defaultID := r.defaultID
	if defaultID == "" && len(r.order) > 0 {
		defaultID = r.order[0]
	}

	out := make([]model.Provider, 0, len(r.order))
	for _, id := range r.order {
		d := r.descriptors[id]
		d.Default = d.ID == defaultID
		out = append(out, d)
	}
	return out
}

// Get returns the descriptor for an id.
func (r *Registry) Get(id string) (model.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[id]
	if !ok {
		return model.Provider{}, false
	}
	defaultID := r.defaultID
	if defaultID == "" && len(r.order) > 0 {
		defaultID = r.order[0]
	}
	d.Default = d.ID == defaultID
	return d, true
}

// Default returns the default provider descriptor.
func (r *Registry) Default() (model.Provider, bool) {
	r.mu.RLock()
	id := r.defaultID
	if id == "" && len(r.order) > 0 {
		id = r.order[0]
	}
	r.mu.RUnlock()
	if id == "" {
		return model.Provider{}, false
	}
	return r.Get(id)
}

// Search dispatches a search to the adapter registered for id.
func (r *Registry) Search(ctx context.Context, id string, params SearchParams) (*SearchResult, error) {
	r.mu.RLock()
	s, ok := r.searchers[id]
	r.mu.RUnlock()
	if !ok || s == nil {
		return nil, eris.Wrapf(ErrUnknownProvider, "%s", id)
	}
	return s.Search(ctx, params)
}

// IDs returns the configured provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	sort.Strings(ids)
	return ids
}
