package domain

import (
	"encoding/json"
	"fmt"
)

// ProviderMetadata is a tagged union keyed by payment method. Exactly one
// variant is set, matching the record's Method, so each adapter's contract
// stays statically checkable instead of a free-form JSON blob.
type ProviderMetadata struct {
	Card         *CardMetadata         `json:"card,omitempty"`
	Wallet       *WalletMetadata       `json:"wallet,omitempty"`
	BankRedirect *BankRedirectMetadata `json:"bank_redirect,omitempty"`
	Voucher      *VoucherMetadata      `json:"voucher,omitempty"`
}

// CardMetadata carries the client-side confirmation token the card gateway
// hands back on authorization; the frontend uses it to finish 3DS.
type CardMetadata struct {
	ClientToken string `json:"client_token"`
	CardBrand   string `json:"card_brand,omitempty"`
	Last4       string `json:"last4,omitempty"`
}

// WalletMetadata carries the wallet gateway's client confirmation token.
type WalletMetadata struct {
	ClientToken string `json:"client_token"`
	WalletRef   string `json:"wallet_ref,omitempty"`
}

// BankRedirectMetadata carries the URL the payer must be sent to; the bank
// confirms the payment out-of-band and capture later verifies it.
type BankRedirectMetadata struct {
	RedirectURL string `json:"redirect_url"`
	BankRef     string `json:"bank_ref,omitempty"`
}

// VoucherMetadata carries the voucher gateway's redirect URL and code.
type VoucherMetadata struct {
	RedirectURL string `json:"redirect_url"`
	VoucherCode string `json:"voucher_code,omitempty"`
}

// Validate checks that exactly the variant matching method is populated.
func (m *ProviderMetadata) Validate(method PaymentMethod) error {
	variants := 0
	if m.Card != nil {
		variants++
	}
	if m.Wallet != nil {
		variants++
	}
	if m.BankRedirect != nil {
		variants++
	}
	if m.Voucher != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("provider metadata must carry exactly one variant, has %d", variants)
	}

	ok := false
	switch method {
	case MethodCardGateway:
		ok = m.Card != nil
	case MethodWalletGateway:
		ok = m.Wallet != nil
	case MethodBankRedirect:
		ok = m.BankRedirect != nil
	case MethodVoucherGateway:
		ok = m.Voucher != nil
	}
	if !ok {
		return fmt.Errorf("provider metadata variant does not match method %s", method)
	}
	return nil
}

// Marshal serialises the union for storage.
func (m *ProviderMetadata) Marshal() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal provider metadata: %w", err)
	}
	return string(b), nil
}

// UnmarshalProviderMetadata restores a stored union; empty input yields nil.
func UnmarshalProviderMetadata(s string) (*ProviderMetadata, error) {
	if s == "" {
		return nil, nil
	}
	var m ProviderMetadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal provider metadata: %w", err)
	}
	return &m, nil
}
