// Package lnbits drives the REST wallet backend. Every call is tagged with a
// correlation id and logged before send and after receipt so payments can be
// audited end to end.
package lnbits

import (
	"fmt"

	"github.com/imroc/req"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// NewClient returns a new wallet backend api client authenticated with the
// process-wide bearer token. Per-user wallets are addressed by wallet id.
func NewClient(token, url string) *Client {
	return &Client{
		url:   url,
		token: token,
	}
}

func (c *Client) header() req.Header {
	return req.Header{
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"Authorization": "Bearer " + c.token,
	}
}

// do performs one backend call, logging request and response under a fresh
// correlation id. Non-2xx responses are returned as ApiError with the parsed
// body preserved for error mining.
func (c *Client) do(method, path string, body interface{}) (gjson.Result, error) {
	cid := uuid.NewV4().String()
	url := c.url + path
	log.Debugf("[lnbits] (%s) -> %s %s body: %+v", cid, method, url, body)

	var resp *req.Resp
	var err error
	switch method {
	case "GET":
		resp, err = req.Get(url, c.header())
	case "POST":
		resp, err = req.Post(url, c.header(), req.BodyJSON(body))
	default:
		return gjson.Result{}, fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		log.Errorf("[lnbits] (%s) transport error: %v", cid, err)
		return gjson.Result{}, err
	}

	status := resp.Response().StatusCode
	raw := resp.String()
	log.Debugf("[lnbits] (%s) <- %d body: %s", cid, status, raw)
	parsed := gjson.Parse(raw)
	if status >= 300 {
		return parsed, ApiError{Status: status, Body: raw}
	}
	return parsed, nil
}

// CreateAccount provisions a new sub-account with an initial wallet.
func (c *Client) CreateAccount(label string) (Account, error) {
	res, err := c.do("POST", "/usermanager/api/v1/users", struct {
		WalletName string `json:"wallet_name"`
		UserName   string `json:"user_name"`
	}{label, label})
	if err != nil {
		return Account{}, err
	}
	acct := Account{
		ID:       res.Get("id").String(),
		WalletID: res.Get("wallets.0.id").String(),
		Label:    label,
	}
	if acct.WalletID == "" {
		// some backend versions return the wallet flat
		acct.WalletID = res.Get("wallet_id").String()
	}
	if acct.ID == "" || acct.WalletID == "" {
		return Account{}, fmt.Errorf("account creation returned no wallet: %s", res.Raw)
	}
	return acct, nil
}

// Balance returns the raw wallet snapshot (balance and pending amounts).
func (c *Client) Balance(walletID string) (gjson.Result, error) {
	return c.do("GET", "/api/v1/wallets/"+walletID, nil)
}

// CreateInvoice asks the backend for a new invoice over amountMsat.
func (c *Client) CreateInvoice(walletID string, amountMsat int64, memo string) (gjson.Result, error) {
	return c.do("POST", "/api/v1/payments", InvoiceParams{
		Out:    false,
		Amount: amountMsat,
		Memo:   memo,
		Wallet: walletID,
	})
}

// PayInvoice settles a bolt11 invoice with funds from the wallet.
func (c *Client) PayInvoice(walletID, bolt11 string) (gjson.Result, error) {
	return c.do("POST", "/api/v1/payments", PaymentParams{
		Out:    true,
		Bolt11: bolt11,
		Wallet: walletID,
	})
}

// PayAddress pays a lightning address, resolution happens backend-side.
func (c *Client) PayAddress(walletID, address string, amountMsat int64) (gjson.Result, error) {
	return c.do("POST", "/api/v1/payments/lnurl", AddressPaymentParams{
		Address:    address,
		AmountMsat: amountMsat,
		Wallet:     walletID,
	})
}

// Address returns the wallet's receiving address.
func (c *Client) Address(walletID string) (string, error) {
	res, err := c.do("GET", "/api/v1/wallets/"+walletID+"/address", nil)
	if err != nil {
		return "", err
	}
	addr := res.Get("address").String()
	if addr == "" {
		return "", fmt.Errorf("no address for wallet %s", walletID)
	}
	return addr, nil
}

// RefreshLedger nudges the backend to sync its internal ledger. Callers
// treat a failure as non-fatal.
func (c *Client) RefreshLedger(walletID string) error {
	_, err := c.do("POST", "/api/v1/wallets/"+walletID+"/refresh", nil)
	return err
}
