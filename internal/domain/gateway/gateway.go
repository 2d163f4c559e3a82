// Package gateway declares the contracts of the external collaborators the
// accounting core depends on: the collateral-token registry, the price
// oracle, the asset-transfer rail, identity, treasury, signing and audit.
// Every call into one of these is a suspension point where concurrent
// requests may interleave; the usecases reserve capacity before calling and
// re-validate state after.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrExternalCall marks a collaborator failure. Adapters wrap it with the
// underlying reason so callers can both branch on the kind and log the
// cause.
var ErrExternalCall = errors.New("external call failed")

type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleInvestor Role = "investor"
	RoleAdmin    Role = "admin"
)

// Identity resolves a caller to its registered role.
type Identity interface {
	VerifyRegistered(ctx context.Context, identity string) (Role, error)
}

// CollateralRegistry manages custody of the collateral NFT (warehouse
// receipt). Lock transfers custody from the owner to the protocol escrow
// identity; Unlock returns it to the owner; Transfer moves it to an
// arbitrary custody identity.
type CollateralRegistry interface {
	OwnerOf(ctx context.Context, tokenID string) (string, error)
	Valuation(ctx context.Context, tokenID string) (int64, error)
	Lock(ctx context.Context, tokenID, owner, escrow string) error
	Unlock(ctx context.Context, tokenID string) error
	Transfer(ctx context.Context, tokenID, to string) error
}

// PricePoint is an oracle quote with its observation time.
type PricePoint struct {
	Value int64
	At    time.Time
}

type PriceOracle interface {
	LatestPrice(ctx context.Context, commodityID string) (PricePoint, error)
}

// AssetRail moves the settlement asset. Pull debits an external account
// into the pool custody account; Push pays out from it. Both return the
// rail's transaction reference.
type AssetRail interface {
	Pull(ctx context.Context, from string, amount int64, opID string) (string, error)
	Push(ctx context.Context, to string, amount int64) (string, error)
}

type FeeKind string

const (
	FeeInterest    FeeKind = "interest"
	FeeLiquidation FeeKind = "liquidation"
)

type Treasury interface {
	CollectFee(ctx context.Context, sourceLoanID string, amount int64, kind FeeKind) error
}

type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// AuditSink records protocol events, fire-and-forget. Implementations must
// never fail the calling operation.
type AuditSink interface {
	Record(event string, fields map[string]any)
}
