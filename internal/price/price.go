// Package price keeps a rolling fiat price of bitcoin, averaged over several
// exchanges, for display next to sat amounts.
package price

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const msatPerBTC = 100_000_000_000

type Watcher struct {
	client         *http.Client
	UpdateInterval time.Duration
	Currencies     []string
	exchanges      map[string]func(string) (float64, error)

	mu     sync.RWMutex
	prices map[string]float64
}

func NewWatcher() *Watcher {
	watcher := &Watcher{
		client: &http.Client{
			Timeout: time.Second * time.Duration(5),
		},
		Currencies:     []string{"USD", "EUR"},
		prices:         make(map[string]float64),
		exchanges:      make(map[string]func(string) (float64, error)),
		UpdateInterval: time.Second * time.Duration(30),
	}
	watcher.exchanges["coinbase"] = watcher.getCoinbasePrice
	watcher.exchanges["bitfinex"] = watcher.getBitfinexPrice
	return watcher
}

func (p *Watcher) Start() {
	log.Infof("[PriceWatcher] watcher started")
	go p.watch()
}

func (p *Watcher) watch() {
	for {
		for _, currency := range p.Currencies {
			avgPrice := 0.0
			responses := 0
			for exchange, getPrice := range p.exchanges {
				fprice, err := getPrice(currency)
				if err != nil {
					// if one exchange is down, use the next
					log.Debugf("[PriceWatcher] %s: %v", exchange, err)
					continue
				}
				responses++
				avgPrice += fprice
			}
			if responses == 0 {
				continue
			}
			p.mu.Lock()
			p.prices[currency] = avgPrice / float64(responses)
			p.mu.Unlock()
			log.Debugf("[PriceWatcher] average %s price: %f", currency, avgPrice/float64(responses))
		}
		time.Sleep(p.UpdateInterval)
	}
}

// Get returns the last known price of one bitcoin in currency.
func (p *Watcher) Get(currency string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[currency]
	return price, ok
}

// FiatValue converts a millisatoshi amount at the last known price.
func (p *Watcher) FiatValue(msat int64, currency string) (float64, bool) {
	price, ok := p.Get(currency)
	if !ok {
		return 0, false
	}
	return float64(msat) / msatPerBTC * price, true
}

func (p *Watcher) fetch(endpoint, path string) (float64, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, err
	}
	response, err := p.client.Get(u.String())
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()
	bodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, err
	}
	price := gjson.GetBytes(bodyBytes, path)
	return strconv.ParseFloat(strings.TrimSpace(price.String()), 64)
}

func (p *Watcher) getCoinbasePrice(currency string) (float64, error) {
	return p.fetch(fmt.Sprintf("https://api.coinbase.com/v2/prices/spot?currency=%s", currency), "data.amount")
}

func (p *Watcher) getBitfinexPrice(currency string) (float64, error) {
	var bitfinexCurrencyToPair = map[string]string{"USD": "btcusd", "EUR": "btceur"}
	pair, ok := bitfinexCurrencyToPair[currency]
	if !ok {
		return 0, fmt.Errorf("no bitfinex pair for %s", currency)
	}
	return p.fetch(fmt.Sprintf("https://api.bitfinex.com/v1/pubticker/%s", pair), "last_price")
}
