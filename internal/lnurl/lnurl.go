// Package lnurl resolves human-readable lightning addresses to one-time
// invoices via the LNURL-pay discovery protocol.
package lnurl

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eko/gocache/store"
	"github.com/fiatjaf/go-lnurl"
	decodepay "github.com/fiatjaf/ln-decodepay"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/satsflow/SatsFlowBot/internal/errors"
	"github.com/satsflow/SatsFlowBot/internal/network"
	"github.com/satsflow/SatsFlowBot/internal/normalize"
	"github.com/satsflow/SatsFlowBot/internal/runtime"
)

const payRequestTag = "payRequest"

// decodeInvoice is a seam for tests.
var decodeInvoice = decodepay.Decodepay

type Resolver struct {
	client *http.Client
	cache  *store.GoCacheStore
}

type payParams struct {
	Callback    string
	MinSendable int64
	MaxSendable int64
}

func NewResolver() *Resolver {
	client, err := network.GetClient()
	if err != nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{
		client: client,
		cache:  store.NewGoCache(gocache.New(5*time.Minute, 10*time.Minute), nil),
	}
}

// endpointURL derives the well-known discovery endpoint from the address
// domain. Onion and local hosts are served over plain http.
func endpointURL(name, domain string) string {
	scheme := "https"
	if strings.HasSuffix(domain, ".onion") ||
		strings.HasPrefix(domain, "127.0.0.1") ||
		strings.HasPrefix(domain, "localhost") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", scheme, domain, name)
}

// params fetches (and caches) the LNURL-pay parameters for an address.
func (r *Resolver) params(name, domain string) (payParams, error) {
	key := fmt.Sprintf("lnurlp_%s@%s", name, domain)
	if cached, err := r.cache.Get(key); err == nil {
		return cached.(payParams), nil
	}

	resp, err := r.client.Get(endpointURL(name, domain))
	if err != nil {
		return payParams{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return payParams{}, fmt.Errorf("lnurlp endpoint returned %s", resp.Status)
	}
	j, err := parseBody(resp)
	if err != nil {
		return payParams{}, err
	}
	if strings.EqualFold(j.Get("status").String(), "error") {
		reason, _ := normalize.ErrorMessage(j)
		return payParams{}, fmt.Errorf("lnurlp endpoint error: %s", reason)
	}
	if j.Get("tag").String() != payRequestTag {
		return payParams{}, fmt.Errorf("unexpected lnurl tag %q", j.Get("tag").String())
	}

	p := payParams{
		Callback:    j.Get("callback").String(),
		MinSendable: j.Get("minSendable").Int(),
		MaxSendable: j.Get("maxSendable").Int(),
	}
	if p.Callback == "" {
		return payParams{}, fmt.Errorf("lnurlp response carries no callback")
	}
	runtime.IgnoreError(r.cache.Set(key, p, &store.Options{Expiration: 5 * time.Minute}))
	return p, nil
}

// Resolve turns address into a bolt11 invoice over exactly amountMsat. The
// returned invoice's embedded amount is verified against the request and a
// mismatch is a hard failure.
func (r *Resolver) Resolve(address string, amountMsat int64) (string, error) {
	name, domain, ok := lnurl.ParseInternetIdentifier(address)
	if !ok {
		return "", errors.New(errors.ResolveAddressError, fmt.Errorf("%q is not a lightning address", address))
	}
	return r.resolveParsed(name, domain, amountMsat)
}

func (r *Resolver) resolveParsed(name, domain string, amountMsat int64) (string, error) {
	p, err := r.params(name, domain)
	if err != nil {
		return "", errors.New(errors.ResolveAddressError, err)
	}

	if p.MinSendable != 0 && amountMsat < p.MinSendable ||
		p.MaxSendable != 0 && amountMsat > p.MaxSendable {
		return "", errors.New(errors.ResolveAddressError,
			fmt.Errorf("amount %d msat out of bounds (min %d, max %d)", amountMsat, p.MinSendable, p.MaxSendable))
	}

	callback, err := url.Parse(p.Callback)
	if err != nil {
		return "", errors.New(errors.ResolveAddressError, err)
	}
	qs := callback.Query()
	qs.Set("amount", strconv.FormatInt(amountMsat, 10))
	callback.RawQuery = qs.Encode()

	log.Debugf("[lnurl] requesting invoice for %s@%s from %s", name, domain, callback.String())
	resp, err := r.client.Get(callback.String())
	if err != nil {
		return "", errors.New(errors.ResolveAddressError, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", errors.New(errors.ResolveAddressError, fmt.Errorf("lnurl callback returned %s", resp.Status))
	}
	j, err := parseBody(resp)
	if err != nil {
		return "", errors.New(errors.ResolveAddressError, err)
	}
	if strings.EqualFold(j.Get("status").String(), "error") {
		reason, _ := normalize.ErrorMessage(j)
		return "", errors.New(errors.ResolveAddressError, fmt.Errorf("lnurl callback error: %s", reason))
	}

	invoice, ok := normalize.Invoice(j)
	if !ok {
		return "", errors.New(errors.ResolveAddressError, fmt.Errorf("lnurl callback returned no invoice"))
	}

	// the service must not be able to make us pay a different amount
	bolt11, err := decodeInvoice(invoice)
	if err != nil {
		return "", errors.New(errors.ResolveAddressError, fmt.Errorf("could not decode returned invoice: %v", err))
	}
	if bolt11.MSatoshi != amountMsat {
		return "", errors.New(errors.AmountMismatchError,
			fmt.Errorf("invoice amount %d msat does not match requested %d msat", bolt11.MSatoshi, amountMsat))
	}
	return invoice, nil
}

func parseBody(resp *http.Response) (gjson.Result, error) {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(b), nil
}
