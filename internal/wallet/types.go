package wallet

import "time"

type BackendKind string

const (
	// BackendNWC is a remote wallet driven over Nostr Wallet Connect.
	BackendNWC BackendKind = "nwc"
	// BackendLNbits is a sub-account on the REST wallet backend.
	BackendLNbits BackendKind = "lnbits"
)

// Config is the persisted wallet configuration of one user, keyed by npub.
// Exactly one backend kind is populated. The NWC connection string is
// stored encrypted and never logged in plaintext.
type Config struct {
	Npub             string      `json:"npub" gorm:"primaryKey"`
	Kind             BackendKind `json:"kind"`
	NWCUri           string      `json:"-"` // secretbox-sealed
	LightningAddress string      `json:"lightning_address"`
	LNbitsWalletID   string      `json:"lnbits_wallet_id"`
	LNbitsAccountID  string      `json:"lnbits_account_id"`
	LNbitsLabel      string      `json:"lnbits_label"`
	CreatedAt        time.Time   `json:"created"`
	UpdatedAt        time.Time   `json:"updated"`
}

type PaymentKind string

const (
	PaymentInvoice PaymentKind = "invoice"
	PaymentAddress PaymentKind = "address"
)

// PaymentRequest is one spend awaiting dispatch: either a bolt11 invoice or
// an (address, amount) pair.
type PaymentRequest struct {
	Kind       PaymentKind `json:"kind"`
	Invoice    string      `json:"invoice,omitempty"`
	Address    string      `json:"address,omitempty"`
	AmountMsat int64       `json:"amount_msat,omitempty"`
	RequestID  string      `json:"request_id"`
}

// Outcome is the normalized result of a payment attempt.
type Outcome struct {
	Success    bool
	Preimage   string
	Error      string
	AmountMsat int64
}

// DisplaySats converts millisatoshis to the display unit. Floor division,
// lossy below 1000 msat.
func DisplaySats(msat int64) int64 {
	return msat / 1000
}
