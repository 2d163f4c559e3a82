package gatewayhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
)

// RegistryClient talks to the collateral-token registry service (custody of
// the warehouse-receipt NFTs).
type RegistryClient struct {
	baseURL string
	hc      httpDoer
}

func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{baseURL: baseURL, hc: defaultClient()}
}

var _ gateway.CollateralRegistry = (*RegistryClient)(nil)

func (r *RegistryClient) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	var out struct {
		Owner string `json:"owner"`
	}
	u := r.baseURL + "/tokens/" + url.PathEscape(tokenID) + "/owner"
	if err := doJSON(ctx, r.hc, http.MethodGet, u, nil, &out); err != nil {
		return "", fmt.Errorf("%w: registry owner_of: %v", gateway.ErrExternalCall, err)
	}
	return out.Owner, nil
}

func (r *RegistryClient) Valuation(ctx context.Context, tokenID string) (int64, error) {
	var out struct {
		Valuation int64 `json:"valuation"`
	}
	u := r.baseURL + "/tokens/" + url.PathEscape(tokenID) + "/valuation"
	if err := doJSON(ctx, r.hc, http.MethodGet, u, nil, &out); err != nil {
		return 0, fmt.Errorf("%w: registry valuation: %v", gateway.ErrExternalCall, err)
	}
	return out.Valuation, nil
}

func (r *RegistryClient) Lock(ctx context.Context, tokenID, owner, escrow string) error {
	in := map[string]string{"owner": owner, "escrow": escrow}
	u := r.baseURL + "/tokens/" + url.PathEscape(tokenID) + "/lock"
	if err := doJSON(ctx, r.hc, http.MethodPost, u, in, nil); err != nil {
		return fmt.Errorf("%w: registry lock: %v", gateway.ErrExternalCall, err)
	}
	return nil
}

func (r *RegistryClient) Unlock(ctx context.Context, tokenID string) error {
	u := r.baseURL + "/tokens/" + url.PathEscape(tokenID) + "/unlock"
	if err := doJSON(ctx, r.hc, http.MethodPost, u, nil, nil); err != nil {
		return fmt.Errorf("%w: registry unlock: %v", gateway.ErrExternalCall, err)
	}
	return nil
}

func (r *RegistryClient) Transfer(ctx context.Context, tokenID, to string) error {
	in := map[string]string{"to": to}
	u := r.baseURL + "/tokens/" + url.PathEscape(tokenID) + "/transfer"
	if err := doJSON(ctx, r.hc, http.MethodPost, u, in, nil); err != nil {
		return fmt.Errorf("%w: registry transfer: %v", gateway.ErrExternalCall, err)
	}
	return nil
}
