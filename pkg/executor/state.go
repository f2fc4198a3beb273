package executor

import (
	"fmt"
	"sync"

	"github.com/wehubfusion/kage/pkg/document"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
)

// ResultStore is the results table: binding name to return value. Entries are
// written once per run.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]interface{}
	order   []string
}

// NewResultStore creates an empty store
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]interface{})}
}

// Set commits a result. A second write for the same name fails.
func (s *ResultStore) Set(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[name]; exists {
		return fmt.Errorf("result for '%s' already committed", name)
	}
	s.results[name] = value
	s.order = append(s.order, name)
	return nil
}

// Get returns a committed result
func (s *ResultStore) Get(name string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.results[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", kerrors.ErrNotExecuted, name)
	}
	return v, nil
}

// Has reports whether name has committed
func (s *ResultStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.results[name]
	return ok
}

// Committed returns names in commit order
func (s *ResultStore) Committed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.order...)
}

// Snapshot returns a deep copy of the table
func (s *ResultStore) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.results))
	for k, v := range s.results {
		out[k] = document.Clone(v)
	}
	return out
}

// Reset clears the table
func (s *ResultStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[string]interface{})
	s.order = nil
}

// OutputAssembler builds the output document from committed results
type OutputAssembler struct {
	mu  sync.Mutex
	doc map[string]interface{}
}

// NewOutputAssembler creates an empty output document
func NewOutputAssembler() *OutputAssembler {
	return &OutputAssembler{doc: make(map[string]interface{})}
}

// Place writes value at key
func (o *OutputAssembler) Place(key string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	document.Set(o.doc, key, document.Clone(value))
}

// Document returns a deep copy of the output document
func (o *OutputAssembler) Document() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return document.CloneMap(o.doc)
}

// Reset empties the output document
func (o *OutputAssembler) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc = make(map[string]interface{})
}

// State is everything a run writes. It outlives runs so callers can read
// results after Execute returns, and is reset when the next run starts.
type State struct {
	Results *ResultStore
	Output  *OutputAssembler

	// RunID identifies the most recent run
	RunID string

	commitMu sync.Mutex
}

// NewState creates empty run state
func NewState() *State {
	return &State{
		Results: NewResultStore(),
		Output:  NewOutputAssembler(),
	}
}

// Reset clears results and output
func (s *State) Reset() {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.Results.Reset()
	s.Output.Reset()
}

// Commit stores a result and places it in the output in one step
func (s *State) Commit(name, outputKey string, value interface{}) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err := s.Results.Set(name, value); err != nil {
		return err
	}
	if outputKey != "" {
		s.Output.Place(outputKey, value)
	}
	return nil
}
