// Package bot is the conversational core: it routes inbound chat messages to
// onboarding, approval and account handlers and talks back through the
// outbound queue.
package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fiatjaf/go-lnurl"
	cmap "github.com/orcaman/concurrent-map"
	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal"
	"github.com/satsflow/SatsFlowBot/internal/lnbits"
	ilnurl "github.com/satsflow/SatsFlowBot/internal/lnurl"
	"github.com/satsflow/SatsFlowBot/internal/nwc"
	"github.com/satsflow/SatsFlowBot/internal/queue"
	"github.com/satsflow/SatsFlowBot/internal/runtime"
	"github.com/satsflow/SatsFlowBot/internal/secret"
	"github.com/satsflow/SatsFlowBot/internal/storage"
	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

// Store is the persistence seam of the bot.
type Store interface {
	FindNpub(gatewayKind, gatewayUser string) (string, error)
	FindGateway(npub string) (gatewayKind, gatewayUser string, err error)
	SaveLink(gatewayKind, gatewayUser, npub string) error
	FindWallet(npub string) (*wallet.Config, error)
	UpsertWallet(cfg *wallet.Config) error
}

// PendingStore holds the single payment awaiting each user's approval.
type PendingStore interface {
	SetPending(p *storage.PendingPayment) error
	PopPending(npub string) (*storage.PendingPayment, error)
}

// Dispatcher executes approved payments against the user's backend.
type Dispatcher interface {
	Dispatch(npub string, req wallet.PaymentRequest) wallet.Outcome
	Balance(npub string) (int64, error)
	Invoice(npub string, amountMsat int64, memo string) (string, error)
	Address(npub string) (string, error)
}

// Provisioner creates backend sub-accounts for custodial users.
type Provisioner interface {
	CreateAccount(label string) (lnbits.Account, error)
}

// PriceSource quotes fiat values for sat amounts. Optional, replies work
// without one.
type PriceSource interface {
	FiatValue(msat int64, currency string) (float64, bool)
}

type Bot struct {
	store      Store
	pending    PendingStore
	publisher  queue.Publisher
	dispatcher Dispatcher
	provision  Provisioner
	box        *secret.Box

	prices PriceSource

	// onboarding conversations, in memory only, keyed by gateway sender
	onboarding cmap.ConcurrentMap

	probeNWC func(uri string) error
	newNpub  func() (string, error)
}

func New(store Store, pending PendingStore, publisher queue.Publisher, dispatcher Dispatcher, provision Provisioner, box *secret.Box, resolver *ilnurl.Resolver) *Bot {
	bot := &Bot{
		store:      store,
		pending:    pending,
		publisher:  publisher,
		dispatcher: dispatcher,
		provision:  provision,
		box:        box,
		onboarding: cmap.New(),
		newNpub:    allocateNpub,
	}
	bot.probeNWC = func(uri string) error {
		client, err := nwc.NewClient(uri, resolver)
		if err != nil {
			return err
		}
		_, err = client.Balance()
		return err
	}
	return bot
}

// WithPrices adds a fiat quote source for balance replies.
func (bot *Bot) WithPrices(prices PriceSource) *Bot {
	bot.prices = prices
	return bot
}

// HandleInbound routes one chat message. It never returns an error, every
// failure ends in a chat reply or a log line.
func (bot *Bot) HandleInbound(msg queue.InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	log.Debugf("[bot] <- %s/%s: %q", msg.Gateway.Kind, msg.Sender, text)

	if state, ok := bot.onboarding.Get(stateKey(msg.Gateway.Kind, msg.Sender)); ok {
		bot.continueOnboarding(msg, state.(*onboardState), text)
		return
	}

	npub, err := bot.store.FindNpub(msg.Gateway.Kind, msg.Sender)
	if err != nil {
		log.Errorf("[bot] identity lookup failed for %s/%s: %v", msg.Gateway.Kind, msg.Sender, err)
		bot.reply(msg, sorryMessage)
		return
	}
	if npub == "" {
		bot.startOnboarding(msg, text)
		return
	}

	cfg, err := bot.store.FindWallet(npub)
	if err != nil {
		log.Errorf("[bot] wallet lookup failed for %s: %v", npub, err)
		bot.reply(msg, sorryMessage)
		return
	}
	if cfg == nil {
		// linked but never finished, e.g. after a restart mid-onboarding
		bot.resumeOnboarding(msg, npub)
		return
	}

	switch {
	case strings.EqualFold(text, "yes"):
		bot.handleApproval(msg, npub)
	case strings.EqualFold(text, "balance"):
		bot.handleBalance(msg, npub)
	case strings.EqualFold(text, "receive") || strings.HasPrefix(strings.ToLower(text), "receive "):
		bot.handleReceive(msg, npub, text)
	case looksLikeAddress(text):
		bot.handleAddressUpdate(msg, cfg, text)
	default:
		bot.reply(msg, helpMessage)
	}
}

func (bot *Bot) handleBalance(msg queue.InboundMessage, npub string) {
	balance, err := bot.dispatcher.Balance(npub)
	if err != nil {
		log.Warnf("[bot] balance of %s failed: %v", npub, err)
		bot.reply(msg, balanceErrorMessage)
		return
	}
	body := fmt.Sprintf(balanceMessage, wallet.DisplaySats(balance))
	if bot.prices != nil {
		if fiat, ok := bot.prices.FiatValue(balance, "USD"); ok {
			body += fmt.Sprintf(balanceFiatMessage, fiat, "USD")
		}
	}
	bot.reply(msg, body)
}

// handleReceive answers "receive <sats>" with a fresh invoice and a bare
// "receive" with the user's lightning address.
func (bot *Bot) handleReceive(msg queue.InboundMessage, npub, text string) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		address, err := bot.dispatcher.Address(npub)
		if err != nil {
			log.Warnf("[bot] address of %s failed: %v", npub, err)
			bot.reply(msg, receiveHintMessage)
			return
		}
		bot.reply(msg, fmt.Sprintf(receiveAddressMessage, address))
		return
	}
	sats, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || sats <= 0 {
		bot.reply(msg, receiveHintMessage)
		return
	}
	invoice, err := bot.dispatcher.Invoice(npub, sats*1000, internal.Configuration.Bot.Name)
	if err != nil {
		log.Warnf("[bot] invoice for %s failed: %v", npub, err)
		bot.reply(msg, receiveErrorMessage)
		return
	}
	bot.reply(msg, fmt.Sprintf(receiveInvoiceMessage, sats, invoice))
}

func (bot *Bot) handleAddressUpdate(msg queue.InboundMessage, cfg *wallet.Config, address string) {
	cfg.LightningAddress = address
	if err := bot.store.UpsertWallet(cfg); err != nil {
		log.Errorf("[bot] address update for %s failed: %v", cfg.Npub, err)
		bot.reply(msg, sorryMessage)
		return
	}
	bot.reply(msg, fmt.Sprintf(addressUpdatedMessage, address))
}

func looksLikeAddress(text string) bool {
	_, _, ok := lnurl.ParseInternetIdentifier(text)
	return ok
}

func (bot *Bot) reply(msg queue.InboundMessage, body string) {
	bot.send(msg.Sender, msg.Gateway, msg.Context, body)
}

func (bot *Bot) send(recipient string, gateway queue.GatewayInfo, context []byte, body string) {
	runtime.IgnoreError(bot.publisher.SendMessage(queue.OutboundMessage{
		Recipient: recipient,
		Gateway:   gateway,
		Body:      body,
		Context:   context,
	}))
}
