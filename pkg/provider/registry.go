package provider

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrUnknownProvider    = errors.New("unknown model provider")
	ErrProviderRegistered = errors.New("model provider already registered")
)

// Registry resolves the provider named in a model configuration.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		err := r.Register(p)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[p.Name()]; ok {
		return errors.Wrap(ErrProviderRegistered, p.Name())
	}
	r.providers[p.Name()] = p

	return nil
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%s, known providers are %v", name, r.names())
	}

	return p, nil
}

func (r *Registry) names() []string {
	res := make([]string, 0, len(r.providers))
	for name := range r.providers {
		res = append(res, name)
	}
	sort.Strings(res)

	return res
}
