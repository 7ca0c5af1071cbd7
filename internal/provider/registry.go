package provider

import (
	"fmt"
	"sort"
	"sync"
)

// UnknownModelError is returned when no registered provider serves the
// requested model. It carries the full model list so the client can correct
// the request without a second round trip.
type UnknownModelError struct {
	Model     string
	Available []string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q (available: %v)", e.Model, e.Available)
}

// UnknownProviderError is returned when the request names a provider that is
// not registered.
type UnknownProviderError struct {
	Provider  string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q (available: %v)", e.Provider, e.Available)
}

// ModelNotServedError is returned when the requested provider exists but does
// not serve the requested model.
type ModelNotServedError struct {
	Provider string
	Model    string
	Models   []string
}

func (e *ModelNotServedError) Error() string {
	return fmt.Sprintf("provider %q does not serve model %q (its models: %v)", e.Provider, e.Model, e.Models)
}

// Entry is one registered provider: its client plus routing metadata.
type Entry struct {
	Name     string
	Client   Client
	Models   []string
	Endpoint string
}

// ModelInfo is the listing shape for a single model.
type ModelInfo struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	OwnedBy  string `json:"owned_by"`
	Provider string `json:"provider"`
}

// ProviderInfo is the listing shape for a provider.
type ProviderInfo struct {
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	Models   []string `json:"models"`
}

// Registry maps model names to the providers serving them. Providers are
// registered once at startup in configuration order; when two providers
// claim the same model, the last registration wins the default route and an
// explicit provider hint still reaches the earlier one.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Entry
	order     []string
	byModel   map[string]string // model -> provider name, last registered wins
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*Entry),
		byModel:   make(map[string]string),
	}
}

// Register adds a provider and indexes its models.
func (r *Registry) Register(name string, client Client, models []string, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = &Entry{Name: name, Client: client, Models: models, Endpoint: endpoint}
	for _, m := range models {
		r.byModel[m] = name
	}
}

// Resolve picks the provider for a request. A non-empty preferred name pins
// the route to that provider and fails if it does not serve the model; an
// empty one follows the model index.
func (r *Registry) Resolve(model, preferred string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preferred != "" {
		entry, ok := r.providers[preferred]
		if !ok {
			return nil, &UnknownProviderError{Provider: preferred, Available: r.names()}
		}
		for _, m := range entry.Models {
			if m == model {
				return entry, nil
			}
		}
		return nil, &ModelNotServedError{Provider: preferred, Model: model, Models: entry.Models}
	}

	name, ok := r.byModel[model]
	if !ok {
		return nil, &UnknownModelError{Model: model, Available: r.allModels()}
	}
	return r.providers[name], nil
}

// ListModels returns every registered model in provider registration order.
func (r *Registry) ListModels() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ModelInfo
	for _, name := range r.order {
		entry := r.providers[name]
		for _, m := range entry.Models {
			out = append(out, ModelInfo{ID: m, Object: "model", OwnedBy: name, Provider: name})
		}
	}
	return out
}

// ListProviders returns registered providers in registration order.
func (r *Registry) ListProviders() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(r.order))
	for _, name := range r.order {
		entry := r.providers[name]
		out = append(out, ProviderInfo{Name: name, Endpoint: entry.Endpoint, Models: entry.Models})
	}
	return out
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.providers[name]
	if !ok {
		return nil, &UnknownProviderError{Provider: name, Available: r.names()}
	}
	return entry, nil
}

func (r *Registry) names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *Registry) allModels() []string {
	models := make([]string, 0, len(r.byModel))
	for m := range r.byModel {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
