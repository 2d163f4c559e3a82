package gatewayhttp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
)

// IdentityClient resolves caller ids against the registration service.
type IdentityClient struct {
	baseURL string
	hc      httpDoer
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{baseURL: baseURL, hc: defaultClient()}
}

var _ gateway.Identity = (*IdentityClient)(nil)

func (i *IdentityClient) VerifyRegistered(ctx context.Context, identity string) (gateway.Role, error) {
	var out struct {
		Role string `json:"role"`
	}
	u := i.baseURL + "/identities/" + url.PathEscape(identity)
	if err := doJSON(ctx, i.hc, http.MethodGet, u, nil, &out); err != nil {
		return "", fmt.Errorf("%w: identity lookup: %v", gateway.ErrExternalCall, err)
	}
	return gateway.Role(out.Role), nil
}

// TreasuryClient forwards protocol fees to the treasury service.
type TreasuryClient struct {
	baseURL string
	hc      httpDoer
}

func NewTreasuryClient(baseURL string) *TreasuryClient {
	return &TreasuryClient{baseURL: baseURL, hc: defaultClient()}
}

var _ gateway.Treasury = (*TreasuryClient)(nil)

func (t *TreasuryClient) CollectFee(ctx context.Context, sourceLoanID string, amount int64, kind gateway.FeeKind) error {
	in := map[string]any{"source_loan_id": sourceLoanID, "amount": amount, "kind": string(kind)}
	if err := doJSON(ctx, t.hc, http.MethodPost, t.baseURL+"/fees", in, nil); err != nil {
		return fmt.Errorf("%w: treasury collect: %v", gateway.ErrExternalCall, err)
	}
	return nil
}

// SignerClient obtains liquidation-claim signatures from the signing service.
type SignerClient struct {
	baseURL string
	hc      httpDoer
}

func NewSignerClient(baseURL string) *SignerClient {
	return &SignerClient{baseURL: baseURL, hc: defaultClient()}
}

var _ gateway.Signer = (*SignerClient)(nil)

func (s *SignerClient) Sign(ctx context.Context, message []byte) ([]byte, error) {
	in := map[string]string{"message": base64.StdEncoding.EncodeToString(message)}
	var out struct {
		Signature string `json:"signature"`
	}
	if err := doJSON(ctx, s.hc, http.MethodPost, s.baseURL+"/sign", in, &out); err != nil {
		return nil, fmt.Errorf("%w: signer: %v", gateway.ErrExternalCall, err)
	}
	sig, err := base64.StdEncoding.DecodeString(out.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signer: bad signature encoding: %v", gateway.ErrExternalCall, err)
	}
	return sig, nil
}

// LogAuditSink records protocol events to the process log. It satisfies the
// fire-and-forget contract trivially: it cannot fail the caller.
type LogAuditSink struct{}

var _ gateway.AuditSink = LogAuditSink{}

func (LogAuditSink) Record(event string, fields map[string]any) {
	payload, err := json.Marshal(fields)
	if err != nil {
		log.Printf("audit %s: %v", event, fields)
		return
	}
	log.Printf("audit %s: %s", event, payload)
}
