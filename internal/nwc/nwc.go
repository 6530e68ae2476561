// Package nwc drives a remote wallet over Nostr Wallet Connect (NIP-47):
// requests are nip04-encrypted events published to the wallet service's
// relay, responses arrive as events referencing the request id.
package nwc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/satsflow/SatsFlowBot/internal/errors"
	"github.com/satsflow/SatsFlowBot/internal/lnurl"
	"github.com/satsflow/SatsFlowBot/internal/normalize"
)

const (
	RequestKind  = 23194
	ResponseKind = 23195

	// a wallet service that hasn't answered by then won't
	responseTimeout = 90 * time.Second
)

type Config struct {
	WalletPubkey string
	Secret       string
	Relays       []string
	Lud16        string
}

// ParseURI parses a nostr+walletconnect:// connection string.
func ParseURI(uri string) (Config, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Config{}, errors.New(errors.InvalidNWCUriError, err)
	}
	if u.Scheme != "nostr+walletconnect" {
		return Config{}, errors.New(errors.InvalidNWCUriError, fmt.Errorf("unexpected scheme %q", u.Scheme))
	}
	cfg := Config{
		WalletPubkey: u.Host,
		Secret:       u.Query().Get("secret"),
		Relays:       u.Query()["relay"],
		Lud16:        u.Query().Get("lud16"),
	}
	if cfg.WalletPubkey == "" && u.Opaque != "" {
		cfg.WalletPubkey = u.Opaque
	}
	if len(cfg.WalletPubkey) != 64 {
		return Config{}, errors.New(errors.InvalidNWCUriError, fmt.Errorf("invalid wallet pubkey"))
	}
	if len(cfg.Secret) != 64 {
		return Config{}, errors.New(errors.InvalidNWCUriError, fmt.Errorf("missing or invalid secret"))
	}
	if len(cfg.Relays) == 0 {
		return Config{}, errors.New(errors.InvalidNWCUriError, fmt.Errorf("missing relay"))
	}
	return cfg, nil
}

// HasURIPrefix reports whether text looks like a pasted connection string.
func HasURIPrefix(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(text)), "nostr+walletconnect://")
}

type Client struct {
	cfg     Config
	resolve *lnurl.Resolver
}

func NewClient(uri string, resolver *lnurl.Resolver) (*Client, error) {
	cfg, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, resolve: resolver}, nil
}

// request performs one NIP-47 round trip. Relays are tried in order, the
// first delivered response wins. Transport and protocol failures are
// terminal for the attempt, retrying is the caller's decision.
func (c *Client) request(method string, params map[string]interface{}) (gjson.Result, error) {
	payload, _ := sjson.Set("{}", "method", method)
	for k, v := range params {
		payload, _ = sjson.Set(payload, "params."+k, v)
	}

	ss, err := nip04.ComputeSharedSecret(c.cfg.WalletPubkey, c.cfg.Secret)
	if err != nil {
		return gjson.Result{}, err
	}
	content, err := nip04.Encrypt(payload, ss)
	if err != nil {
		return gjson.Result{}, err
	}
	pub, err := nostr.GetPublicKey(c.cfg.Secret)
	if err != nil {
		return gjson.Result{}, err
	}

	ev := nostr.Event{
		PubKey:    pub,
		CreatedAt: time.Now(),
		Kind:      RequestKind,
		Tags:      nostr.Tags{{"p", c.cfg.WalletPubkey}},
		Content:   content,
	}
	if err := ev.Sign(c.cfg.Secret); err != nil {
		return gjson.Result{}, err
	}

	var lastErr error
	for _, relayURL := range c.cfg.Relays {
		res, err := c.roundTrip(relayURL, ev, ss)
		if err == nil {
			return res, nil
		}
		log.Warnf("[nwc] relay %s: %v", relayURL, err)
		lastErr = err
	}
	return gjson.Result{}, fmt.Errorf("no relay answered: %v", lastErr)
}

func (c *Client) roundTrip(relayURL string, ev nostr.Event, ss []byte) (gjson.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), responseTimeout)
	defer cancel()

	relay, err := nostr.RelayConnect(ctx, relayURL)
	if err != nil {
		return gjson.Result{}, err
	}
	defer relay.Close()

	sub := relay.Subscribe(ctx, nostr.Filters{{
		Kinds:   []int{ResponseKind},
		Authors: []string{c.cfg.WalletPubkey},
		Tags:    nostr.TagMap{"e": []string{ev.ID}},
	}})

	status := relay.Publish(ctx, ev)
	log.Debugf("[nwc] published request %s to %s: %s", ev.ID, relayURL, status)

	select {
	case resp := <-sub.Events:
		plain, err := nip04.Decrypt(resp.Content, ss)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("could not decrypt response: %v", err)
		}
		log.Debugf("[nwc] response for %s: %s", ev.ID, plain)
		res := gjson.Parse(plain)
		if e := res.Get("error"); e.IsObject() {
			msg, _ := normalize.ErrorMessage(e)
			return res, fmt.Errorf("wallet rejected %s: %s", res.Get("result_type").String(), msg)
		}
		return res, nil
	case <-ctx.Done():
		return gjson.Result{}, fmt.Errorf("timeout waiting for wallet response")
	}
}

// PayInvoice settles a bolt11 invoice through the connected wallet.
func (c *Client) PayInvoice(bolt11 string) (gjson.Result, error) {
	return c.request("pay_invoice", map[string]interface{}{"invoice": bolt11})
}

// PayAddress resolves a lightning address to an invoice (hard amount
// verification happens during resolution) and pays it.
func (c *Client) PayAddress(address string, amountMsat int64) (gjson.Result, error) {
	invoice, err := c.resolve.Resolve(address, amountMsat)
	if err != nil {
		return gjson.Result{}, err
	}
	return c.PayInvoice(invoice)
}

// MakeInvoice asks the wallet for a fresh invoice over amountMsat.
func (c *Client) MakeInvoice(amountMsat int64, memo string) (string, error) {
	res, err := c.request("make_invoice", map[string]interface{}{
		"amount":      amountMsat,
		"description": memo,
	})
	if err != nil {
		return "", err
	}
	invoice, ok := normalize.Invoice(res)
	if !ok {
		return "", fmt.Errorf("wallet returned no invoice")
	}
	return invoice, nil
}

// Balance returns the wallet balance in millisatoshis. Doubles as the live
// probe used to validate a user-supplied connection string.
func (c *Client) Balance() (int64, error) {
	res, err := c.request("get_balance", nil)
	if err != nil {
		return 0, err
	}
	balance, ok := normalize.Balance(res)
	if !ok {
		return 0, errors.New(errors.GetBalanceError, fmt.Errorf("wallet returned no balance"))
	}
	return balance, nil
}

// Address returns the wallet's lightning address if the connection string
// advertised one.
func (c *Client) Address() (string, error) {
	if c.cfg.Lud16 == "" {
		return "", fmt.Errorf("wallet advertises no lightning address")
	}
	return c.cfg.Lud16, nil
}
