package provider

import (
	"context"
	"fmt"

	"github.com/rentora/payments/internal/domain"
)

// CardGateway talks to the card-network acquirer ("cardnet"). Authorize
// places a hold on the card; Capture finalises it; Refund reverses a captured
// transaction.
type CardGateway struct {
	gatewayClient
}

func NewCardGateway(baseURL, apiKey string, opts ...Option) *CardGateway {
	o := applyOptions(opts)
	return &CardGateway{newGatewayClient("cardnet", baseURL, apiKey, o.timeout)}
}

func (g *CardGateway) Name() string { return "cardnet" }

type cardAuthRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CardToken string `json:"card_token"`
}

type cardAuthResponse struct {
	AuthorizationID string `json:"authorization_id"`
	ClientToken     string `json:"client_token"`
	CardBrand       string `json:"card_brand"`
	Last4           string `json:"last4"`
	Status          string `json:"status"`
}

func (g *CardGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.CardToken == "" {
		return nil, declined(g.name, "missing_card_token", "card authorization requires a card token")
	}

	var resp cardAuthResponse
	err := g.do(ctx, "POST", "/v1/authorizations", cardAuthRequest{
		Reference: req.PaymentID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CardToken: req.CardToken,
	}, &resp, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status == "declined" {
		return nil, declined(g.name, "card_declined", "issuer declined the authorization")
	}

	return &AuthorizeResult{
		ExternalAuthorizationID: resp.AuthorizationID,
		Metadata: &domain.ProviderMetadata{
			Card: &domain.CardMetadata{
				ClientToken: resp.ClientToken,
				CardBrand:   resp.CardBrand,
				Last4:       resp.Last4,
			},
		},
	}, nil
}

type cardCaptureResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (g *CardGateway) Capture(ctx context.Context, externalAuthID string) (*CaptureResult, error) {
	var resp cardCaptureResponse
	path := fmt.Sprintf("/v1/authorizations/%s/capture", externalAuthID)
	// The gateway de-duplicates capture on the idempotency key, so replaying
	// a capture for the same authorization cannot double-charge.
	headers := map[string]string{"Idempotency-Key": externalAuthID}
	if err := g.do(ctx, "POST", path, nil, &resp, headers); err != nil {
		return nil, err
	}
	if resp.Status != "captured" {
		return nil, declined(g.name, "capture_"+resp.Status, "capture was not accepted")
	}
	return &CaptureResult{ExternalTransactionID: resp.TransactionID}, nil
}

type cardRefundResponse struct {
	RefundID string `json:"refund_id"`
}

func (g *CardGateway) Refund(ctx context.Context, externalTxnID string) (*RefundResult, error) {
	var resp cardRefundResponse
	path := fmt.Sprintf("/v1/transactions/%s/refund", externalTxnID)
	if err := g.do(ctx, "POST", path, nil, &resp, nil); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: resp.RefundID}, nil
}
