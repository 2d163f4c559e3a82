package gatewayhttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
)

// RailClient moves the settlement asset through the transfer rail service.
// Pull carries the caller's op id as the rail-side idempotency key, so a
// retried request after a timeout cannot debit twice. Push transfers get a
// fresh client-side reference per attempt; the usecases compensate pushes
// explicitly instead.
type RailClient struct {
	baseURL   string
	custodyID string
	hc        httpDoer
}

func NewRailClient(baseURL, custodyID string) *RailClient {
	return &RailClient{baseURL: baseURL, custodyID: custodyID, hc: defaultClient()}
}

var _ gateway.AssetRail = (*RailClient)(nil)

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Ref    string `json:"ref"`
}

type transferResponse struct {
	TxRef string `json:"tx_ref"`
}

func (r *RailClient) Pull(ctx context.Context, from string, amount int64, opID string) (string, error) {
	in := transferRequest{From: from, To: r.custodyID, Amount: amount, Ref: opID}
	var out transferResponse
	if err := doJSON(ctx, r.hc, http.MethodPost, r.baseURL+"/transfers", in, &out); err != nil {
		return "", fmt.Errorf("%w: rail pull: %v", gateway.ErrExternalCall, err)
	}
	return out.TxRef, nil
}

func (r *RailClient) Push(ctx context.Context, to string, amount int64) (string, error) {
	in := transferRequest{From: r.custodyID, To: to, Amount: amount, Ref: uuid.NewString()}
	var out transferResponse
	if err := doJSON(ctx, r.hc, http.MethodPost, r.baseURL+"/transfers", in, &out); err != nil {
		return "", fmt.Errorf("%w: rail push: %v", gateway.ErrExternalCall, err)
	}
	return out.TxRef, nil
}
