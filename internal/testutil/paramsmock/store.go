package paramsmock

import (
	"context"
	"sync"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/params"
)

// Store keeps the parameter set in memory. The zero value serves the
// defaults.
type Store struct {
	mu sync.Mutex
	p  *params.Params
}

var _ params.Store = (*Store)(nil)

func New(p *params.Params) *Store { return &Store{p: p} }

func (s *Store) Get(ctx context.Context) (*params.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		s.p = params.Default()
	}
	cp := *s.p
	return &cp, nil
}

func (s *Store) Put(ctx context.Context, p *params.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.p = &cp
	return nil
}
