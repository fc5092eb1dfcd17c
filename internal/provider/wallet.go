package provider

import (
	"context"
	"fmt"

	"github.com/rentora/payments/internal/domain"
)

// WalletGateway talks to the e-wallet backend ("walletio"). The flow mirrors
// the card gateway: Authorize places a hold on the payer's wallet balance,
// Capture commits it.
type WalletGateway struct {
	gatewayClient
}

func NewWalletGateway(baseURL, apiKey string, opts ...Option) *WalletGateway {
	o := applyOptions(opts)
	return &WalletGateway{newGatewayClient("walletio", baseURL, apiKey, o.timeout)}
}

func (g *WalletGateway) Name() string { return "walletio" }

type walletHoldRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	WalletRef string `json:"wallet_ref"`
}

type walletHoldResponse struct {
	HoldID      string `json:"hold_id"`
	ClientToken string `json:"client_token"`
	Status      string `json:"status"`
}

func (g *WalletGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.WalletRef == "" {
		return nil, declined(g.name, "missing_wallet_ref", "wallet authorization requires a wallet reference")
	}

	var resp walletHoldResponse
	err := g.do(ctx, "POST", "/v2/holds", walletHoldRequest{
		Reference: req.PaymentID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		WalletRef: req.WalletRef,
	}, &resp, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status == "insufficient_funds" {
		return nil, declined(g.name, "insufficient_funds", "wallet balance too low for hold")
	}

	return &AuthorizeResult{
		ExternalAuthorizationID: resp.HoldID,
		Metadata: &domain.ProviderMetadata{
			Wallet: &domain.WalletMetadata{
				ClientToken: resp.ClientToken,
				WalletRef:   req.WalletRef,
			},
		},
	}, nil
}

type walletCommitResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (g *WalletGateway) Capture(ctx context.Context, externalAuthID string) (*CaptureResult, error) {
	var resp walletCommitResponse
	path := fmt.Sprintf("/v2/holds/%s/commit", externalAuthID)
	headers := map[string]string{"Idempotency-Key": externalAuthID}
	if err := g.do(ctx, "POST", path, nil, &resp, headers); err != nil {
		return nil, err
	}
	if resp.Status != "committed" {
		return nil, declined(g.name, "commit_"+resp.Status, "hold commit was not accepted")
	}
	return &CaptureResult{ExternalTransactionID: resp.TransactionID}, nil
}

type walletReverseResponse struct {
	ReversalID string `json:"reversal_id"`
}

func (g *WalletGateway) Refund(ctx context.Context, externalTxnID string) (*RefundResult, error) {
	var resp walletReverseResponse
	path := fmt.Sprintf("/v2/payments/%s/reverse", externalTxnID)
	if err := g.do(ctx, "POST", path, nil, &resp, nil); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: resp.ReversalID}, nil
}
