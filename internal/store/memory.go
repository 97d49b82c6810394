package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Memory is a thread-safe in-memory Store. Used by tests and local runs
// without a database.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]json.RawMessage)}
}

func (m *Memory) Get(_ context.Context, collection, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	return slices.Clone(doc), nil
}

func (m *Memory) Set(_ context.Context, collection, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]json.RawMessage)
	}
	m.collections[collection][key] = data
	return nil
}

func (m *Memory) DeleteAll(_ context.Context, collection string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, collection)
	return nil
}

func (m *Memory) AppendToArray(_ context.Context, collection, key, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.collections[collection][key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}

	var arr []json.RawMessage
	if existing, ok := doc[field]; ok && len(existing) > 0 {
		if err := json.Unmarshal(existing, &arr); err != nil {
			return fmt.Errorf("field %q of %s/%s is not an array: %w", field, collection, key, err)
		}
	}

	elem, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal array element: %w", err)
	}
	arr = append(arr, elem)

	updated, err := json.Marshal(arr)
	if err != nil {
		return err
	}
	doc[field] = updated

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.collections[collection][key] = data
	return nil
}

func (m *Memory) List(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]Document, 0, len(m.collections[collection]))
	for key, value := range m.collections[collection] {
		docs = append(docs, Document{Key: key, Value: slices.Clone(value)})
	}
	slices.SortFunc(docs, func(a, b Document) int {
		return strings.Compare(a.Key, b.Key)
	})
	return docs, nil
}
