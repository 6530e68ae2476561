package wallet

import (
	"fmt"

	decodepay "github.com/fiatjaf/ln-decodepay"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/satsflow/SatsFlowBot/internal/errors"
	"github.com/satsflow/SatsFlowBot/internal/normalize"
)

// HTTPBackend is the capability set of the REST wallet backend client.
type HTTPBackend interface {
	PayInvoice(walletID, bolt11 string) (gjson.Result, error)
	PayAddress(walletID, address string, amountMsat int64) (gjson.Result, error)
	CreateInvoice(walletID string, amountMsat int64, memo string) (gjson.Result, error)
	Balance(walletID string) (gjson.Result, error)
	Address(walletID string) (string, error)
	RefreshLedger(walletID string) error
}

// NWCBackend is the capability set of one connected protocol wallet.
type NWCBackend interface {
	PayInvoice(bolt11 string) (gjson.Result, error)
	PayAddress(address string, amountMsat int64) (gjson.Result, error)
	MakeInvoice(amountMsat int64, memo string) (string, error)
	Balance() (int64, error)
	Address() (string, error)
}

// NWCDialer turns a decrypted connection string into a live client.
type NWCDialer func(uri string) (NWCBackend, error)

type Dispatcher struct {
	resolver *Resolver
	lnbits   HTTPBackend
	dialNWC  NWCDialer
}

func NewDispatcher(resolver *Resolver, lnbits HTTPBackend, dial NWCDialer) *Dispatcher {
	return &Dispatcher{resolver: resolver, lnbits: lnbits, dialNWC: dial}
}

// snapshot is a best-effort view of the backend wallet taken before a
// payment, used only to enrich failure messages.
type snapshot struct {
	balanceMsat int64
	pendingMsat int64
	ok          bool
}

// Dispatch resolves the user's wallet, invokes the matching backend and
// normalizes whatever came back into a uniform outcome. Remote failures are
// terminal for the attempt, no retries happen here.
func (d *Dispatcher) Dispatch(npub string, req PaymentRequest) Outcome {
	out := Outcome{AmountMsat: d.requestAmount(req)}

	resolved, err := d.resolver.Resolve(npub)
	if err != nil {
		log.Warnf("[dispatch] no wallet for %s: %v", npub, err)
		out.Error = errors.ErrNoWallet.Message
		return out
	}

	switch resolved.Kind {
	case BackendLNbits:
		return d.dispatchLNbits(resolved, req, out)
	case BackendNWC:
		return d.dispatchNWC(resolved, req, out)
	default:
		out.Error = "no backend for wallet"
		return out
	}
}

// requestAmount returns the requested amount in msat, decoding the invoice
// when the request carries one. When both are present a mismatch is logged,
// informational only: the invoice is what gets paid.
func (d *Dispatcher) requestAmount(req PaymentRequest) int64 {
	if req.Invoice == "" {
		return req.AmountMsat
	}
	bolt11, err := decodepay.Decodepay(req.Invoice)
	if err != nil {
		log.Debugf("[dispatch] could not decode invoice of request %s: %v", req.RequestID, err)
		return req.AmountMsat
	}
	if req.AmountMsat > 0 && bolt11.MSatoshi != req.AmountMsat {
		log.Warnf("[dispatch] request %s asked for %d msat but invoice embeds %d msat",
			req.RequestID, req.AmountMsat, bolt11.MSatoshi)
	}
	return bolt11.MSatoshi
}

func (d *Dispatcher) dispatchLNbits(w *Resolved, req PaymentRequest, out Outcome) Outcome {
	snap := d.takeSnapshot(w.LNbitsWalletID)

	var res gjson.Result
	var err error
	switch req.Kind {
	case PaymentAddress:
		res, err = d.lnbits.PayAddress(w.LNbitsWalletID, req.Address, req.AmountMsat)
	default:
		res, err = d.lnbits.PayInvoice(w.LNbitsWalletID, req.Invoice)
	}
	return d.finish(res, err, snap, out)
}

func (d *Dispatcher) dispatchNWC(w *Resolved, req PaymentRequest, out Outcome) Outcome {
	client, err := d.dialNWC(w.NWCUri)
	if err != nil {
		log.Errorf("[dispatch] could not connect wallet of %s: %v", w.Npub, err)
		out.Error = "could not connect to your wallet"
		return out
	}

	var res gjson.Result
	switch req.Kind {
	case PaymentAddress:
		res, err = client.PayAddress(req.Address, req.AmountMsat)
	default:
		res, err = client.PayInvoice(req.Invoice)
	}
	return d.finish(res, err, snapshot{}, out)
}

// takeSnapshot refreshes the backend ledger and reads balance and pending
// amounts. Declared best-effort: failures are logged and never abort the
// payment.
func (d *Dispatcher) takeSnapshot(walletID string) snapshot {
	if err := d.lnbits.RefreshLedger(walletID); err != nil {
		log.Warnf("[dispatch] ledger refresh failed: %v", err)
	}
	res, err := d.lnbits.Balance(walletID)
	if err != nil {
		log.Warnf("[dispatch] balance snapshot failed: %v", err)
		return snapshot{}
	}
	snap := snapshot{ok: true}
	snap.balanceMsat, _ = normalize.Balance(res)
	snap.pendingMsat, _ = normalize.Pending(res)
	return snap
}

// finish turns a raw backend response (or error) into the final outcome.
func (d *Dispatcher) finish(res gjson.Result, err error, snap snapshot, out Outcome) Outcome {
	if err != nil {
		out.Error = d.enrich(minedError(res, err), snap, out.AmountMsat)
		return out
	}
	if !normalize.Success(res) {
		out.Error = d.enrich(minedError(res, fmt.Errorf("payment was not confirmed")), snap, out.AmountMsat)
		return out
	}
	out.Success = true
	out.Preimage, _ = normalize.Preimage(res)
	return out
}

// minedError prefers a human-readable reason from the response body over
// the transport error's text.
func minedError(res gjson.Result, err error) string {
	if msg, ok := normalize.ErrorMessage(res); ok {
		return msg
	}
	return err.Error()
}

// enrich appends a balance summary to a failure message when a snapshot is
// available, to help the user diagnose an insufficient-funds situation.
func (d *Dispatcher) enrich(msg string, snap snapshot, amountMsat int64) string {
	if !snap.ok {
		return msg
	}
	return fmt.Sprintf("%s (balance: %d sat, pending: %d sat, requested: %d sat)",
		msg, DisplaySats(snap.balanceMsat), DisplaySats(snap.pendingMsat), DisplaySats(amountMsat))
}

// Balance reads the current balance of the user's wallet in msat.
func (d *Dispatcher) Balance(npub string) (int64, error) {
	resolved, err := d.resolver.Resolve(npub)
	if err != nil {
		return 0, err
	}
	switch resolved.Kind {
	case BackendLNbits:
		res, err := d.lnbits.Balance(resolved.LNbitsWalletID)
		if err != nil {
			return 0, err
		}
		balance, ok := normalize.Balance(res)
		if !ok {
			return 0, errors.New(errors.GetBalanceError, fmt.Errorf("backend returned no balance"))
		}
		return balance, nil
	case BackendNWC:
		client, err := d.dialNWC(resolved.NWCUri)
		if err != nil {
			return 0, err
		}
		return client.Balance()
	}
	return 0, errors.New(errors.NoBackendError, fmt.Errorf("unknown backend kind %q", resolved.Kind))
}

// Invoice asks the user's backend for a fresh invoice over amountMsat.
func (d *Dispatcher) Invoice(npub string, amountMsat int64, memo string) (string, error) {
	resolved, err := d.resolver.Resolve(npub)
	if err != nil {
		return "", err
	}
	switch resolved.Kind {
	case BackendLNbits:
		res, err := d.lnbits.CreateInvoice(resolved.LNbitsWalletID, amountMsat, memo)
		if err != nil {
			return "", err
		}
		invoice, ok := normalize.Invoice(res)
		if !ok {
			return "", fmt.Errorf("backend returned no invoice")
		}
		return invoice, nil
	case BackendNWC:
		client, err := d.dialNWC(resolved.NWCUri)
		if err != nil {
			return "", err
		}
		return client.MakeInvoice(amountMsat, memo)
	}
	return "", errors.New(errors.NoBackendError, fmt.Errorf("unknown backend kind %q", resolved.Kind))
}

// Address returns the user's receiving address: the stored display address
// when present, otherwise whatever the backend advertises.
func (d *Dispatcher) Address(npub string) (string, error) {
	resolved, err := d.resolver.Resolve(npub)
	if err != nil {
		return "", err
	}
	if resolved.LightningAddress != "" {
		return resolved.LightningAddress, nil
	}
	switch resolved.Kind {
	case BackendLNbits:
		return d.lnbits.Address(resolved.LNbitsWalletID)
	case BackendNWC:
		client, err := d.dialNWC(resolved.NWCUri)
		if err != nil {
			return "", err
		}
		return client.Address()
	}
	return "", errors.New(errors.NoBackendError, fmt.Errorf("unknown backend kind %q", resolved.Kind))
}
