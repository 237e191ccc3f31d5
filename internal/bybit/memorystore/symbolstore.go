package memorystore

import (
	"strings"
	"sync"
)

// SymbolStore collects the symbols of a run in arrival order. Repeats and
// blank names are ignored; names are upper-cased.
type SymbolStore struct {
	mu      sync.Mutex
	symbols []string
	seen    map[string]struct{}
}

func NewSymbolStore() *SymbolStore {
	return &SymbolStore{
		symbols: make([]string, 0),
		seen:    make(map[string]struct{}),
	}
}

// Add stores symbol and reports whether it was new.
func (s *SymbolStore) Add(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[symbol]; ok {
		return false
	}
	s.seen[symbol] = struct{}{}
	s.symbols = append(s.symbols, symbol)
	return true
}

// StartWorker drains ch into the store. The returned channel is closed once
// ch is closed and fully consumed.
func (s *SymbolStore) StartWorker(ch <-chan string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for symbol := range ch {
			s.Add(symbol)
		}
	}()
	return done
}

func (s *SymbolStore) GetAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *SymbolStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}
