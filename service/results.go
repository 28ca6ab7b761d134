package service

import (
	"net/http"
	"sync"

	"github.com/ethereum-optimism/infra/op-describe/reporting"
	"github.com/ethereum-optimism/infra/op-describe/types"
)

// ResultStore keeps the JSON rendering of the most recent run.
// It is a run reporter and an http.Handler.
type ResultStore struct {
	mu   sync.RWMutex
	last []byte
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Report replaces the stored result
func (s *ResultStore) Report(result *types.RunResult) error {
	data, err := reporting.FormatJSON(result)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.last = data
	s.mu.Unlock()
	return nil
}

// Last returns the stored JSON, or nil before the first run
func (s *ResultStore) Last() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *ResultStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data := s.Last()
	if data == nil {
		http.Error(w, "no run has completed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data) //nolint:errcheck
}
