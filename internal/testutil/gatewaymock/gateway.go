package gatewaymock

import (
	"context"
	"sync"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
)

// Registry is a function-backed mock for gateway.CollateralRegistry. The
// defaults make the happy path work with no setup: the caller owns every
// token and custody calls succeed.
type Registry struct {
	OwnerOfFn   func(ctx context.Context, tokenID string) (string, error)
	ValuationFn func(ctx context.Context, tokenID string) (int64, error)
	LockFn      func(ctx context.Context, tokenID, owner, escrow string) error
	UnlockFn    func(ctx context.Context, tokenID string) error
	TransferFn  func(ctx context.Context, tokenID, to string) error
}

var _ gateway.CollateralRegistry = (*Registry)(nil)

func (m *Registry) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	if m.OwnerOfFn != nil {
		return m.OwnerOfFn(ctx, tokenID)
	}
	return "", context.Canceled
}

func (m *Registry) Valuation(ctx context.Context, tokenID string) (int64, error) {
	if m.ValuationFn != nil {
		return m.ValuationFn(ctx, tokenID)
	}
	return 0, context.Canceled
}

func (m *Registry) Lock(ctx context.Context, tokenID, owner, escrow string) error {
	if m.LockFn != nil {
		return m.LockFn(ctx, tokenID, owner, escrow)
	}
	return nil
}

func (m *Registry) Unlock(ctx context.Context, tokenID string) error {
	if m.UnlockFn != nil {
		return m.UnlockFn(ctx, tokenID)
	}
	return nil
}

func (m *Registry) Transfer(ctx context.Context, tokenID, to string) error {
	if m.TransferFn != nil {
		return m.TransferFn(ctx, tokenID, to)
	}
	return nil
}

// Oracle is a function-backed mock for gateway.PriceOracle.
type Oracle struct {
	LatestPriceFn func(ctx context.Context, commodityID string) (gateway.PricePoint, error)
}

var _ gateway.PriceOracle = (*Oracle)(nil)

func (m *Oracle) LatestPrice(ctx context.Context, commodityID string) (gateway.PricePoint, error) {
	if m.LatestPriceFn != nil {
		return m.LatestPriceFn(ctx, commodityID)
	}
	return gateway.PricePoint{}, context.Canceled
}

// Rail is a function-backed mock for gateway.AssetRail. Defaults succeed and
// return fixed references.
type Rail struct {
	PullFn func(ctx context.Context, from string, amount int64, opID string) (string, error)
	PushFn func(ctx context.Context, to string, amount int64) (string, error)
}

var _ gateway.AssetRail = (*Rail)(nil)

func (m *Rail) Pull(ctx context.Context, from string, amount int64, opID string) (string, error) {
	if m.PullFn != nil {
		return m.PullFn(ctx, from, amount, opID)
	}
	return "tx-pull", nil
}

func (m *Rail) Push(ctx context.Context, to string, amount int64) (string, error) {
	if m.PushFn != nil {
		return m.PushFn(ctx, to, amount)
	}
	return "tx-push", nil
}

// Identity is a function-backed mock for gateway.Identity. Roles maps caller
// id to role; unknown callers fail the lookup.
type Identity struct {
	Roles              map[string]gateway.Role
	VerifyRegisteredFn func(ctx context.Context, identity string) (gateway.Role, error)
}

var _ gateway.Identity = (*Identity)(nil)

func (m *Identity) VerifyRegistered(ctx context.Context, identity string) (gateway.Role, error) {
	if m.VerifyRegisteredFn != nil {
		return m.VerifyRegisteredFn(ctx, identity)
	}
	if role, ok := m.Roles[identity]; ok {
		return role, nil
	}
	return "", gateway.ErrExternalCall
}

// Treasury is a function-backed mock for gateway.Treasury.
type Treasury struct {
	CollectFeeFn func(ctx context.Context, sourceLoanID string, amount int64, kind gateway.FeeKind) error
}

var _ gateway.Treasury = (*Treasury)(nil)

func (m *Treasury) CollectFee(ctx context.Context, sourceLoanID string, amount int64, kind gateway.FeeKind) error {
	if m.CollectFeeFn != nil {
		return m.CollectFeeFn(ctx, sourceLoanID, amount, kind)
	}
	return nil
}

// Signer is a function-backed mock for gateway.Signer; the default signs
// everything with a fixed byte string.
type Signer struct {
	SignFn func(ctx context.Context, message []byte) ([]byte, error)
}

var _ gateway.Signer = (*Signer)(nil)

func (m *Signer) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if m.SignFn != nil {
		return m.SignFn(ctx, message)
	}
	return []byte("signed"), nil
}

// Audit records events in memory for assertions.
type Audit struct {
	mu     sync.Mutex
	Events []AuditEvent
}

type AuditEvent struct {
	Event  string
	Fields map[string]any
}

var _ gateway.AuditSink = (*Audit)(nil)

func (m *Audit) Record(event string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, AuditEvent{Event: event, Fields: fields})
}

// Has reports whether an event with the given name was recorded.
func (m *Audit) Has(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Events {
		if e.Event == event {
			return true
		}
	}
	return false
}
