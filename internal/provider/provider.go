// Package provider contains one adapter per external payment backend. Each
// adapter normalises its gateway's wire protocol into the engine's
// authorize/capture/refund contract and maps failures onto
// domain.ProviderError, classifying transport faults as retryable and hard
// declines as not.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rentora/payments/internal/domain"
)

// AuthorizeRequest is the adapter-facing view of an authorization. Only the
// fields relevant to the target backend are consulted; adapters validate the
// ones they require.
type AuthorizeRequest struct {
	PaymentID string
	Amount    int64
	Currency  string

	CardToken   string // card gateway: client-side tokenised instrument
	WalletRef   string // wallet gateway: payer wallet account
	ReturnURL   string // redirect-style gateways: where to send the payer back
	VoucherCode string // voucher gateway: prepaid voucher to redeem
}

// AuthorizeResult carries the provider handle plus the metadata variant the
// caller must relay to the payer (confirmation token or redirect URL).
type AuthorizeResult struct {
	ExternalAuthorizationID string
	Metadata                *domain.ProviderMetadata
}

// CaptureResult reports a successful capture. Failure travels on the error
// channel as a domain.ProviderError; a not-yet-paid redirect is a retryable
// one.
type CaptureResult struct {
	ExternalTransactionID string
}

type RefundResult struct {
	RefundID string
}

// Adapter is implemented once per payment backend.
//
// Authorize must not move funds. Capture finalises a held authorization (card,
// wallet) or confirms an externally completed redirect payment (bank, voucher)
// and is idempotent on externalAuthID. Refund is only required for captured
// payments; backends without refund support return a non-retryable error.
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	Capture(ctx context.Context, externalAuthID string) (*CaptureResult, error)
	Refund(ctx context.Context, externalTxnID string) (*RefundResult, error)
}

// Registry maps a payment method to its adapter. Built once at wiring time.
type Registry map[domain.PaymentMethod]Adapter

func (r Registry) Get(method domain.PaymentMethod) Adapter {
	return r[method]
}

// --- shared HTTP gateway client ---

type gatewayClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newGatewayClient(name, baseURL, apiKey string, timeout time.Duration) gatewayClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return gatewayClient{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// do sends a JSON request and decodes the response into out. Non-2xx
// responses become ProviderErrors: 5xx/408/429 retryable, other 4xx declined.
// Transport errors are retryable since the outcome was not observed.
func (g *gatewayClient) do(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &domain.ProviderError{
			Provider: g.name, Code: "transport",
			Msg: err.Error(), Retryable: true,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return g.statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.ProviderError{
				Provider: g.name, Code: "bad_response",
				Msg: "decode response: " + err.Error(), Retryable: true,
			}
		}
	}
	return nil
}

func (g *gatewayClient) statusError(resp *http.Response) error {
	var gwErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &gwErr)
	if gwErr.Code == "" {
		gwErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	if gwErr.Message == "" {
		gwErr.Message = http.StatusText(resp.StatusCode)
	}

	retryable := resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests

	return &domain.ProviderError{
		Provider:  g.name,
		Code:      gwErr.Code,
		Msg:       gwErr.Message,
		Retryable: retryable,
	}
}

func declined(name, code, msg string) error {
	return &domain.ProviderError{Provider: name, Code: code, Msg: msg, Retryable: false}
}

func notYetPaid(name string) error {
	return &domain.ProviderError{
		Provider: name, Code: "not_paid",
		Msg: "payer has not completed the external payment", Retryable: true,
	}
}
