package provider

import (
	"context"
	"fmt"

	"github.com/rentora/payments/internal/domain"
)

// VoucherGateway talks to the prepaid voucher backend ("vouchly"). Like the
// bank redirect it is create+confirm: Authorize opens a redemption the payer
// completes on the voucher network's page, Capture verifies the redemption
// actually happened. Vouchers cannot be refunded once redeemed.
type VoucherGateway struct {
	gatewayClient
}

func NewVoucherGateway(baseURL, apiKey string, opts ...Option) *VoucherGateway {
	o := applyOptions(opts)
	return &VoucherGateway{newGatewayClient("vouchly", baseURL, apiKey, o.timeout)}
}

func (g *VoucherGateway) Name() string { return "vouchly" }

type voucherCreateRequest struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	VoucherCode string `json:"voucher_code,omitempty"`
	ReturnURL   string `json:"return_url"`
}

type voucherResponse struct {
	RedemptionID  string `json:"redemption_id"`
	RedirectURL   string `json:"redirect_url"`
	VoucherCode   string `json:"voucher_code"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

func (g *VoucherGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ReturnURL == "" {
		return nil, declined(g.name, "missing_return_url", "voucher redemption requires a return URL")
	}

	var resp voucherResponse
	err := g.do(ctx, "POST", "/v1/redemptions", voucherCreateRequest{
		Reference:   req.PaymentID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		VoucherCode: req.VoucherCode,
		ReturnURL:   req.ReturnURL,
	}, &resp, nil)
	if err != nil {
		return nil, err
	}

	return &AuthorizeResult{
		ExternalAuthorizationID: resp.RedemptionID,
		Metadata: &domain.ProviderMetadata{
			Voucher: &domain.VoucherMetadata{
				RedirectURL: resp.RedirectURL,
				VoucherCode: resp.VoucherCode,
			},
		},
	}, nil
}

func (g *VoucherGateway) Capture(ctx context.Context, externalAuthID string) (*CaptureResult, error) {
	var resp voucherResponse
	path := fmt.Sprintf("/v1/redemptions/%s", externalAuthID)
	if err := g.do(ctx, "GET", path, nil, &resp, nil); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "redeemed":
		return &CaptureResult{ExternalTransactionID: resp.TransactionID}, nil
	case "open", "pending":
		return nil, notYetPaid(g.name)
	default:
		return nil, declined(g.name, "redemption_"+resp.Status, "voucher redemption can no longer be completed")
	}
}

func (g *VoucherGateway) Refund(ctx context.Context, externalTxnID string) (*RefundResult, error) {
	return nil, declined(g.name, "refund_unsupported", "voucher network does not support refunds")
}
