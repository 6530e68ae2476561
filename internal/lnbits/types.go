package lnbits

import "fmt"

type Client struct {
	url   string
	token string
}

// Account is a provisioned backend sub-account holding one wallet.
type Account struct {
	ID       string `json:"id"`
	WalletID string `json:"wallet_id"`
	Label    string `json:"label"`
}

type InvoiceParams struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"` // millisatoshi
	Memo   string `json:"memo,omitempty"`
	Wallet string `json:"wallet"`
}

type PaymentParams struct {
	Out    bool   `json:"out"`
	Bolt11 string `json:"bolt11"`
	Wallet string `json:"wallet"`
}

type AddressPaymentParams struct {
	Address    string `json:"address"`
	AmountMsat int64  `json:"amount_msat"`
	Wallet     string `json:"wallet"`
}

// ApiError carries the HTTP status and the raw response body of a non-2xx
// reply so callers can mine it for a human-readable reason.
type ApiError struct {
	Status int
	Body   string
}

func (e ApiError) Error() string {
	return fmt.Sprintf("lnbits: request failed with status %d", e.Status)
}
