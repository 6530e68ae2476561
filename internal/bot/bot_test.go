package bot

import (
	"fmt"
	"strings"
	"testing"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/satsflow/SatsFlowBot/internal/lnbits"
	"github.com/satsflow/SatsFlowBot/internal/queue"
	"github.com/satsflow/SatsFlowBot/internal/secret"
	"github.com/satsflow/SatsFlowBot/internal/storage"
	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

const testPreimage = "0aa557e01f4cdb0c6dbfccc4e349a04eed0e5856eb21694ae5b1b32418818d87"

type fakeStore struct {
	links   map[string]string // gatewayKind:gatewayUser -> npub
	wallets map[string]*wallet.Config
	linkErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: map[string]string{}, wallets: map[string]*wallet.Config{}}
}

func (s *fakeStore) FindNpub(gatewayKind, gatewayUser string) (string, error) {
	return s.links[strings.ToLower(gatewayKind)+":"+gatewayUser], nil
}

func (s *fakeStore) FindGateway(npub string) (string, string, error) {
	for k, v := range s.links {
		if v == npub {
			parts := strings.SplitN(k, ":", 2)
			return parts[0], parts[1], nil
		}
	}
	return "", "", nil
}

func (s *fakeStore) SaveLink(gatewayKind, gatewayUser, npub string) error {
	if s.linkErr != nil {
		return s.linkErr
	}
	s.links[strings.ToLower(gatewayKind)+":"+gatewayUser] = npub
	return nil
}

func (s *fakeStore) FindWallet(npub string) (*wallet.Config, error) {
	return s.wallets[npub], nil
}

func (s *fakeStore) UpsertWallet(cfg *wallet.Config) error {
	if existing, ok := s.wallets[cfg.Npub]; ok {
		if cfg.NWCUri == "" {
			cfg.NWCUri = existing.NWCUri
		}
		if cfg.LNbitsWalletID == "" {
			cfg.LNbitsWalletID = existing.LNbitsWalletID
		}
		if cfg.LightningAddress == "" {
			cfg.LightningAddress = existing.LightningAddress
		}
	}
	s.wallets[cfg.Npub] = cfg
	return nil
}

type fakePending struct {
	pending map[string]*storage.PendingPayment
}

func newFakePending() *fakePending {
	return &fakePending{pending: map[string]*storage.PendingPayment{}}
}

func (p *fakePending) SetPending(pp *storage.PendingPayment) error {
	p.pending[pp.Npub] = pp
	return nil
}

func (p *fakePending) PopPending(npub string) (*storage.PendingPayment, error) {
	pp := p.pending[npub]
	delete(p.pending, npub)
	return pp, nil
}

type fakePublisher struct {
	messages []queue.OutboundMessage
	events   []queue.Event
}

func (p *fakePublisher) SendMessage(msg queue.OutboundMessage) error {
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) SendEvent(ev queue.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) lastBody(t *testing.T) string {
	t.Helper()
	if len(p.messages) == 0 {
		t.Fatal("no outbound message sent")
	}
	return p.messages[len(p.messages)-1].Body
}

type fakeDispatcher struct {
	outcome     wallet.Outcome
	balance     int64
	balanceErr  error
	invoice     string
	invoiceErr  error
	address     string
	addressErr  error
	dispatched  []wallet.PaymentRequest
	dispatchFor []string
}

func (d *fakeDispatcher) Dispatch(npub string, req wallet.PaymentRequest) wallet.Outcome {
	d.dispatched = append(d.dispatched, req)
	d.dispatchFor = append(d.dispatchFor, npub)
	return d.outcome
}

func (d *fakeDispatcher) Balance(npub string) (int64, error) {
	return d.balance, d.balanceErr
}

func (d *fakeDispatcher) Invoice(npub string, amountMsat int64, memo string) (string, error) {
	return d.invoice, d.invoiceErr
}

func (d *fakeDispatcher) Address(npub string) (string, error) {
	return d.address, d.addressErr
}

type fakeProvisioner struct {
	account lnbits.Account
	err     error
	labels  []string
}

func (p *fakeProvisioner) CreateAccount(label string) (lnbits.Account, error) {
	p.labels = append(p.labels, label)
	if p.err != nil {
		return lnbits.Account{}, p.err
	}
	acct := p.account
	acct.Label = label
	return acct, nil
}

type testBot struct {
	bot        *Bot
	store      *fakeStore
	pending    *fakePending
	publisher  *fakePublisher
	dispatcher *fakeDispatcher
	provision  *fakeProvisioner
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	box, err := secret.NewBox(strings.Repeat("cd", 32))
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	tb := &testBot{
		store:      newFakeStore(),
		pending:    newFakePending(),
		publisher:  &fakePublisher{},
		dispatcher: &fakeDispatcher{},
		provision:  &fakeProvisioner{account: lnbits.Account{ID: "a1", WalletID: "w1"}},
	}
	tb.bot = &Bot{
		store:      tb.store,
		pending:    tb.pending,
		publisher:  tb.publisher,
		dispatcher: tb.dispatcher,
		provision:  tb.provision,
		box:        box,
		onboarding: cmap.New(),
		newNpub:    func() (string, error) { return "npub1test", nil },
		probeNWC:   func(uri string) error { return nil },
	}
	return tb
}

func inbound(text string) queue.InboundMessage {
	return queue.InboundMessage{
		Sender:  "+15551234",
		Gateway: queue.GatewayInfo{Kind: "whatsapp"},
		Text:    text,
	}
}

func (tb *testBot) onboarded(t *testing.T, kind wallet.BackendKind) {
	t.Helper()
	if err := tb.store.SaveLink("whatsapp", "+15551234", "npub1test"); err != nil {
		t.Fatal(err)
	}
	cfg := &wallet.Config{Npub: "npub1test", Kind: kind}
	if kind == wallet.BackendLNbits {
		cfg.LNbitsWalletID = "w1"
	}
	tb.store.wallets["npub1test"] = cfg
}

func TestFirstContactStartsOnboarding(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))

	if got := tb.publisher.lastBody(t); got != welcomeMessage {
		t.Errorf("reply = %q", got)
	}
	if tb.store.links["whatsapp:+15551234"] != "npub1test" {
		t.Errorf("links = %v", tb.store.links)
	}
	if _, ok := tb.bot.onboarding.Get("whatsapp:+15551234"); !ok {
		t.Error("no onboarding state created")
	}
}

func TestPastedURIAcceptedImmediately(t *testing.T) {
	tb := newTestBot(t)
	var probed string
	tb.bot.probeNWC = func(uri string) error { probed = uri; return nil }

	tb.bot.HandleInbound(inbound("nostr+walletconnect://abc?relay=wss://r&secret=s"))

	if probed == "" {
		t.Fatal("wallet was not probed")
	}
	cfg := tb.store.wallets["npub1test"]
	if cfg == nil || cfg.Kind != wallet.BackendNWC {
		t.Fatalf("wallet = %+v", cfg)
	}
	if cfg.NWCUri == "" || strings.Contains(cfg.NWCUri, "walletconnect") {
		t.Errorf("credential stored in plaintext: %q", cfg.NWCUri)
	}
	if got := tb.publisher.lastBody(t); got != askAddressMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestChoiceOneThenInvalidThenValidURI(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("1"))
	if got := tb.publisher.lastBody(t); got != askNWCMessage {
		t.Fatalf("reply = %q", got)
	}

	tb.bot.probeNWC = func(uri string) error { return fmt.Errorf("relay unreachable") }
	tb.bot.HandleInbound(inbound("nostr+walletconnect://broken?relay=wss://r&secret=s"))
	if got := tb.publisher.lastBody(t); got != nwcInvalidMessage {
		t.Fatalf("reply = %q", got)
	}
	if _, ok := tb.bot.onboarding.Get("whatsapp:+15551234"); !ok {
		t.Fatal("state must survive a failed probe")
	}

	tb.bot.probeNWC = func(uri string) error { return nil }
	tb.bot.HandleInbound(inbound("nostr+walletconnect://abc?relay=wss://r&secret=s"))
	if got := tb.publisher.lastBody(t); got != askAddressMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestChoiceTwoProvisionsWallet(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("2"))

	if len(tb.provision.labels) != 1 {
		t.Fatal("no account provisioned")
	}
	if label := tb.provision.labels[0]; label != "whatsapp-15551234" {
		t.Errorf("label = %q", label)
	}
	cfg := tb.store.wallets["npub1test"]
	if cfg == nil || cfg.Kind != wallet.BackendLNbits || cfg.LNbitsWalletID != "w1" {
		t.Fatalf("wallet = %+v", cfg)
	}
	if got := tb.publisher.lastBody(t); got != askAddressMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestChoiceTwoAfterChoiceOneProvisionsWallet(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("1"))
	tb.bot.HandleInbound(inbound("2"))

	if len(tb.provision.labels) != 1 {
		t.Fatal("no account provisioned after switching to option 2")
	}
	cfg := tb.store.wallets["npub1test"]
	if cfg == nil || cfg.Kind != wallet.BackendLNbits {
		t.Fatalf("wallet = %+v", cfg)
	}
	if got := tb.publisher.lastBody(t); got != askAddressMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestOnboardingCompletesWithAddress(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("2"))
	tb.bot.HandleInbound(inbound("alice@ln.example"))

	cfg := tb.store.wallets["npub1test"]
	if cfg.LightningAddress != "alice@ln.example" {
		t.Errorf("address = %q", cfg.LightningAddress)
	}
	if got := tb.publisher.lastBody(t); !strings.Contains(got, "npub1test") {
		t.Errorf("closing message %q misses the npub", got)
	}
	if _, ok := tb.bot.onboarding.Get("whatsapp:+15551234"); ok {
		t.Error("state not cleaned up after completion")
	}
	if len(tb.publisher.events) != 1 || tb.publisher.events[0].Type != queue.EventNewUser {
		t.Errorf("events = %+v", tb.publisher.events)
	}
}

func TestOnboardingSkipAddress(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("2"))
	tb.bot.HandleInbound(inbound("No"))

	cfg := tb.store.wallets["npub1test"]
	if cfg.LightningAddress != "" {
		t.Errorf("address = %q after skip", cfg.LightningAddress)
	}
	if got := tb.publisher.lastBody(t); !strings.Contains(got, "npub1test") {
		t.Errorf("closing message %q", got)
	}
}

func TestUnrecognizedChoicePromptsAgain(t *testing.T) {
	tb := newTestBot(t)
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("maybe"))
	if got := tb.publisher.lastBody(t); got != chooseAgainMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestProvisionFailureResets(t *testing.T) {
	tb := newTestBot(t)
	tb.provision.err = fmt.Errorf("backend down")
	tb.bot.HandleInbound(inbound("hi"))
	tb.bot.HandleInbound(inbound("2"))

	if got := tb.publisher.lastBody(t); got != sorryMessage {
		t.Errorf("reply = %q", got)
	}
	if _, ok := tb.bot.onboarding.Get("whatsapp:+15551234"); ok {
		t.Error("state must be reset after a failure")
	}
}

func TestApprovalDispatchesPending(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)
	tb.dispatcher.outcome = wallet.Outcome{Success: true, Preimage: testPreimage}
	tb.dispatcher.balance = 42000
	req := wallet.PaymentRequest{Kind: wallet.PaymentInvoice, Invoice: "lnbc123", RequestID: "r1"}
	if err := tb.pending.SetPending(&storage.PendingPayment{Npub: "npub1test", Request: req}); err != nil {
		t.Fatal(err)
	}

	tb.bot.HandleInbound(inbound("YES"))

	if len(tb.dispatcher.dispatched) != 1 || tb.dispatcher.dispatched[0].RequestID != "r1" {
		t.Fatalf("dispatched %+v", tb.dispatcher.dispatched)
	}
	body := tb.publisher.lastBody(t)
	for _, want := range []string{testPreimage, "42 sat"} {
		if !strings.Contains(body, want) {
			t.Errorf("confirmation %q misses %q", body, want)
		}
	}
	if len(tb.publisher.events) != 1 || tb.publisher.events[0].Status != queue.StatusPaid {
		t.Errorf("events = %+v", tb.publisher.events)
	}
}

func TestApprovalNothingPending(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	tb.bot.HandleInbound(inbound("yes"))

	if len(tb.publisher.messages) != 0 {
		t.Errorf("unexpected reply %q", tb.publisher.messages)
	}
	if len(tb.dispatcher.dispatched) != 0 {
		t.Error("dispatch must not run without a pending payment")
	}
}

func TestApprovalReadOnce(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)
	tb.dispatcher.outcome = wallet.Outcome{Success: true}
	req := wallet.PaymentRequest{Kind: wallet.PaymentInvoice, Invoice: "lnbc123", RequestID: "r1"}
	if err := tb.pending.SetPending(&storage.PendingPayment{Npub: "npub1test", Request: req}); err != nil {
		t.Fatal(err)
	}

	tb.bot.HandleInbound(inbound("yes"))
	tb.bot.HandleInbound(inbound("yes"))

	if len(tb.dispatcher.dispatched) != 1 {
		t.Errorf("dispatched %d times, want once", len(tb.dispatcher.dispatched))
	}
}

func TestApprovalFailureReportsReason(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)
	tb.dispatcher.outcome = wallet.Outcome{Error: "insufficient funds (balance: 5 sat, pending: 0 sat, requested: 21 sat)"}
	req := wallet.PaymentRequest{Kind: wallet.PaymentInvoice, Invoice: "lnbc123", RequestID: "r1"}
	if err := tb.pending.SetPending(&storage.PendingPayment{Npub: "npub1test", Request: req}); err != nil {
		t.Fatal(err)
	}

	tb.bot.HandleInbound(inbound("yes"))

	if got := tb.publisher.lastBody(t); !strings.Contains(got, "insufficient funds") {
		t.Errorf("reply = %q", got)
	}
	if len(tb.publisher.events) != 1 || tb.publisher.events[0].Status != queue.StatusRejected {
		t.Errorf("events = %+v", tb.publisher.events)
	}
}

func TestBalanceCommand(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendNWC)
	tb.dispatcher.balance = 21000

	tb.bot.HandleInbound(inbound("balance"))

	if got := tb.publisher.lastBody(t); !strings.Contains(got, "21 sat") {
		t.Errorf("reply = %q", got)
	}
}

func TestAddressUpdate(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	tb.bot.HandleInbound(inbound("bob@ln.example"))

	if cfg := tb.store.wallets["npub1test"]; cfg.LightningAddress != "bob@ln.example" {
		t.Errorf("address = %q", cfg.LightningAddress)
	}
	if cfg := tb.store.wallets["npub1test"]; cfg.LNbitsWalletID != "w1" {
		t.Errorf("wallet id lost on address update: %+v", cfg)
	}
	if got := tb.publisher.lastBody(t); !strings.Contains(got, "bob@ln.example") {
		t.Errorf("reply = %q", got)
	}
}

func TestReceiveWithAmount(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)
	tb.dispatcher.invoice = "lnbc210n1validlooking"

	tb.bot.HandleInbound(inbound("receive 21"))

	body := tb.publisher.lastBody(t)
	if !strings.Contains(body, "lnbc210n1validlooking") || !strings.Contains(body, "21 sat") {
		t.Errorf("reply = %q", body)
	}
}

func TestReceiveWithoutAmountGivesAddress(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendNWC)
	tb.dispatcher.address = "alice@ln.example"

	tb.bot.HandleInbound(inbound("receive"))

	if got := tb.publisher.lastBody(t); !strings.Contains(got, "alice@ln.example") {
		t.Errorf("reply = %q", got)
	}
}

func TestReceiveBadAmount(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	tb.bot.HandleInbound(inbound("receive lots"))

	if got := tb.publisher.lastBody(t); got != receiveHintMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestUnknownTextGetsHelp(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	tb.bot.HandleInbound(inbound("what can you do"))

	if got := tb.publisher.lastBody(t); got != helpMessage {
		t.Errorf("reply = %q", got)
	}
}

func TestPaymentRequestPromptsApproval(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	tb.bot.HandlePaymentRequest(queue.PaymentRequestMessage{
		Npub: "npub1test",
		Request: wallet.PaymentRequest{
			Kind: wallet.PaymentAddress, Address: "shop@ln.example", AmountMsat: 21000, RequestID: "r1",
		},
	})

	if p := tb.pending.pending["npub1test"]; p == nil || p.Request.RequestID != "r1" {
		t.Fatalf("pending = %+v", tb.pending.pending)
	}
	msg := tb.publisher.messages[len(tb.publisher.messages)-1]
	if msg.Recipient != "+15551234" {
		t.Errorf("prompt sent to %q", msg.Recipient)
	}
	for _, want := range []string{"21 sat", "shop@ln.example", "yes"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("prompt %q misses %q", msg.Body, want)
		}
	}
}

func TestPaymentRequestBySenderIdentity(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	tb.bot.HandlePaymentRequest(queue.PaymentRequestMessage{
		Sender:  "+15551234",
		Gateway: queue.GatewayInfo{Kind: "whatsapp"},
		Request: wallet.PaymentRequest{Kind: wallet.PaymentInvoice, Invoice: "lnbc123", RequestID: "r2"},
	})

	if p := tb.pending.pending["npub1test"]; p == nil || p.Request.RequestID != "r2" {
		t.Fatalf("pending = %+v", tb.pending.pending)
	}
}

func TestPaymentRequestUnknownUserDropped(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.HandlePaymentRequest(queue.PaymentRequestMessage{
		Sender:  "+19990000",
		Gateway: queue.GatewayInfo{Kind: "whatsapp"},
		Request: wallet.PaymentRequest{Kind: wallet.PaymentInvoice, Invoice: "lnbc123", RequestID: "r3"},
	})

	if len(tb.pending.pending) != 0 || len(tb.publisher.messages) != 0 {
		t.Errorf("request for unknown user was processed: %+v", tb.pending.pending)
	}
}

func TestPaymentRequestReplacesPending(t *testing.T) {
	tb := newTestBot(t)
	tb.onboarded(t, wallet.BackendLNbits)

	for _, id := range []string{"r1", "r2"} {
		tb.bot.HandlePaymentRequest(queue.PaymentRequestMessage{
			Npub:    "npub1test",
			Request: wallet.PaymentRequest{Kind: wallet.PaymentInvoice, Invoice: "lnbc" + id, RequestID: id},
		})
	}

	if p := tb.pending.pending["npub1test"]; p == nil || p.Request.RequestID != "r2" {
		t.Errorf("pending = %+v, want the replacing request", p)
	}
}
