package provider

import (
	"context"
	"fmt"

	"github.com/rentora/payments/internal/domain"
)

// BankRedirectGateway talks to the local bank-transfer backend ("banklink").
// The bank only supports create+confirm: Authorize opens a pending payment
// and hands back the URL the payer must visit; the actual transfer happens
// out-of-band. Capture polls the payment state once and only succeeds when
// the bank reports it paid, so a redirect the payer abandoned never settles.
type BankRedirectGateway struct {
	gatewayClient
}

func NewBankRedirectGateway(baseURL, apiKey string, opts ...Option) *BankRedirectGateway {
	o := applyOptions(opts)
	return &BankRedirectGateway{newGatewayClient("banklink", baseURL, apiKey, o.timeout)}
}

func (g *BankRedirectGateway) Name() string { return "banklink" }

type bankCreateRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	ReturnURL string `json:"return_url"`
}

type bankPaymentResponse struct {
	PaymentID     string `json:"payment_id"`
	RedirectURL   string `json:"redirect_url"`
	BankRef       string `json:"bank_ref"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

func (g *BankRedirectGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ReturnURL == "" {
		return nil, declined(g.name, "missing_return_url", "bank redirect requires a return URL")
	}

	var resp bankPaymentResponse
	err := g.do(ctx, "POST", "/api/payments", bankCreateRequest{
		Reference: req.PaymentID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		ReturnURL: req.ReturnURL,
	}, &resp, nil)
	if err != nil {
		return nil, err
	}

	return &AuthorizeResult{
		ExternalAuthorizationID: resp.PaymentID,
		Metadata: &domain.ProviderMetadata{
			BankRedirect: &domain.BankRedirectMetadata{
				RedirectURL: resp.RedirectURL,
				BankRef:     resp.BankRef,
			},
		},
	}, nil
}

func (g *BankRedirectGateway) Capture(ctx context.Context, externalAuthID string) (*CaptureResult, error) {
	var resp bankPaymentResponse
	path := fmt.Sprintf("/api/payments/%s", externalAuthID)
	if err := g.do(ctx, "GET", path, nil, &resp, nil); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "paid":
		return &CaptureResult{ExternalTransactionID: resp.TransactionID}, nil
	case "created", "pending":
		return nil, notYetPaid(g.name)
	default: // expired, cancelled
		return nil, declined(g.name, "payment_"+resp.Status, "bank payment can no longer be completed")
	}
}

type bankRefundResponse struct {
	RefundID string `json:"refund_id"`
}

func (g *BankRedirectGateway) Refund(ctx context.Context, externalTxnID string) (*RefundResult, error) {
	var resp bankRefundResponse
	path := fmt.Sprintf("/api/transactions/%s/refund", externalTxnID)
	if err := g.do(ctx, "POST", path, nil, &resp, nil); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: resp.RefundID}, nil
}
