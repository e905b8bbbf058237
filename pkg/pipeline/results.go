package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// ResultStore keeps the encoded result of each step so the steps consuming it can read it back,
// possibly from another process.
type ResultStore interface {
	Save(ctx context.Context, step string, data []byte) error
	// Load fails with an error wrapping ErrResultNotFound when step has no result.
	Load(ctx context.Context, step string) ([]byte, error)
}

// MemoryResultStore is a ResultStore for pipelines running in a single process.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		results: make(map[string][]byte),
	}
}

func (m *MemoryResultStore) Save(_ context.Context, step string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[step] = data

	return nil
}

func (m *MemoryResultStore) Load(_ context.Context, step string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.results[step]
	if !ok {
		return nil, errors.Wrap(ErrResultNotFound, step)
	}

	return data, nil
}

var _ ResultStore = (*MemoryResultStore)(nil)

// LoadResult decodes the result of step.
func LoadResult[O any](ctx context.Context, results ResultStore, step string) (O, error) {
	var out O

	data, err := results.Load(ctx, step)
	if err != nil {
		return out, errors.Wrapf(err, "unable to load result of %s", step)
	}

	err = json.Unmarshal(data, &out)
	if err != nil {
		return out, errors.Wrapf(err, "unable to decode result of %s", step)
	}

	return out, nil
}

func saveResult[O any](ctx context.Context, results ResultStore, step string, out O) error {
	data, err := json.Marshal(out)
	if err != nil {
		return errors.Wrapf(err, "unable to encode result of %s", step)
	}

	err = results.Save(ctx, step, data)
	if err != nil {
		return errors.Wrapf(err, "unable to save result of %s", step)
	}

	return nil
}
