// Package models holds the model catalog the scheduler resolves job models
// against, including per-model tool inheritance metadata.
package models

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Meta carries per-model defaults configured by the admin.
type Meta struct {
	ToolIDs []string `json:"toolIds,omitempty"`
}

// Info is the editable model record.
type Info struct {
	Meta Meta `json:"meta"`
}

// Model is one catalog entry.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Info *Info  `json:"info,omitempty"`
}

// ToolIDs returns the tools configured on the model, or nil.
func (m *Model) ToolIDs() []string {
	if m == nil || m.Info == nil {
		return nil
	}
	return m.Info.Meta.ToolIDs
}

// Registry is an in-memory model catalog. Lookups are safe for concurrent
// use; Replace swaps the whole catalog atomically.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// LoadRegistry reads a JSON model catalog from path. The file holds either a
// bare array of models or an object with a "models" key.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}

	var list []*Model
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Models []*Model `json:"models"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse model catalog %s: %w", path, err)
		}
		list = wrapped.Models
	}

	r := NewRegistry()
	r.Replace(list)
	return r, nil
}

// Replace swaps the catalog contents.
func (r *Registry) Replace(list []*Model) {
	next := make(map[string]*Model, len(list))
	for _, m := range list {
		if m != nil && m.ID != "" {
			next[m.ID] = m
		}
	}
	r.mu.Lock()
	r.models = next
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// First returns the lexically first model ID, for last-resort fallback when
// neither the job's model nor the user's preferences resolve.
func (r *Registry) First() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.models) == 0 {
		return "", false
	}
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0], true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
