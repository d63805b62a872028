package simple

import (
	"context"
	"sync"
)

type Generator struct {
	mu      sync.Mutex
	counter int
}

func New() *Generator {
	//nolint:exhaustruct
	return &Generator{}
}

// NewFrom returns a generator whose first id is last+1. Use it to continue the sequence
// of a store that already holds records.
func NewFrom(last int) *Generator {
	//nolint:exhaustruct
	return &Generator{counter: last}
}

func (g *Generator) GetID(_ context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++

	return g.counter, nil
}
