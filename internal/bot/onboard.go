package bot

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal/nwc"
	"github.com/satsflow/SatsFlowBot/internal/queue"
	"github.com/satsflow/SatsFlowBot/internal/runtime"
	"github.com/satsflow/SatsFlowBot/internal/str"
	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

type onboardStep string

const (
	stepChoice  onboardStep = "awaiting_choice"
	stepNWC     onboardStep = "awaiting_nwc"
	stepAddress onboardStep = "awaiting_ln_address"
)

const maxLabelLength = 40

// onboardState is one user's onboarding conversation. Held in memory only,
// a restart resets the conversation but keeps the allocated npub.
type onboardState struct {
	Npub string
	Step onboardStep
	Kind wallet.BackendKind
}

func stateKey(gatewayKind, sender string) string {
	return strings.ToLower(gatewayKind) + ":" + sender
}

// allocateNpub mints a fresh nostr identity for a new user. Only the public
// key is kept, the throwaway private key is discarded.
func allocateNpub() (string, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", err
	}
	return nip19.EncodePublicKey(pk)
}

func (bot *Bot) startOnboarding(msg queue.InboundMessage, text string) {
	npub, err := bot.newNpub()
	if err != nil {
		log.Errorf("[onboard] npub allocation failed: %v", err)
		bot.reply(msg, sorryMessage)
		return
	}
	if err := bot.store.SaveLink(msg.Gateway.Kind, msg.Sender, npub); err != nil {
		log.Errorf("[onboard] could not link %s/%s: %v", msg.Gateway.Kind, msg.Sender, err)
		bot.reply(msg, sorryMessage)
		return
	}
	log.Infof("[onboard] new user %s/%s -> %s", msg.Gateway.Kind, msg.Sender, npub)

	state := &onboardState{Npub: npub, Step: stepChoice}
	bot.onboarding.Set(stateKey(msg.Gateway.Kind, msg.Sender), state)

	// a pasted wallet link is accepted right away, no need to pick option 1
	if nwc.HasURIPrefix(text) {
		bot.linkNWC(msg, state, text)
		return
	}
	bot.reply(msg, welcomeMessage)
}

// resumeOnboarding picks a linked user without a finished wallet back up at
// the backend choice.
func (bot *Bot) resumeOnboarding(msg queue.InboundMessage, npub string) {
	bot.onboarding.Set(stateKey(msg.Gateway.Kind, msg.Sender), &onboardState{Npub: npub, Step: stepChoice})
	bot.reply(msg, welcomeBackMessage)
}

func (bot *Bot) continueOnboarding(msg queue.InboundMessage, state *onboardState, text string) {
	switch state.Step {
	case stepChoice:
		if nwc.HasURIPrefix(text) {
			bot.linkNWC(msg, state, text)
			return
		}
		switch text {
		case "1":
			state.Step = stepNWC
			bot.reply(msg, askNWCMessage)
		case "2":
			bot.provisionWallet(msg, state)
		default:
			bot.reply(msg, chooseAgainMessage)
		}
	case stepNWC:
		// switching to the custodial option is still allowed here
		if text == "2" {
			bot.provisionWallet(msg, state)
			return
		}
		if !nwc.HasURIPrefix(text) {
			bot.reply(msg, nwcInvalidMessage)
			return
		}
		bot.linkNWC(msg, state, text)
	case stepAddress:
		if strings.EqualFold(text, "no") {
			bot.finishOnboarding(msg, state, "")
			return
		}
		// stored verbatim, the address is only display metadata
		bot.finishOnboarding(msg, state, text)
	default:
		log.Errorf("[onboard] unknown step %q for %s", state.Step, state.Npub)
		bot.abortOnboarding(msg)
	}
}

// linkNWC validates the pasted connection link with a live balance probe and
// stores the credential encrypted.
func (bot *Bot) linkNWC(msg queue.InboundMessage, state *onboardState, uri string) {
	if err := bot.probeNWC(uri); err != nil {
		log.Warnf("[onboard] wallet probe for %s failed: %v", state.Npub, err)
		bot.reply(msg, nwcInvalidMessage)
		return
	}
	sealed, err := bot.box.Encrypt(uri)
	if err != nil {
		log.Errorf("[onboard] could not seal credential of %s: %v", state.Npub, err)
		bot.abortOnboarding(msg)
		return
	}
	err = bot.store.UpsertWallet(&wallet.Config{
		Npub:   state.Npub,
		Kind:   wallet.BackendNWC,
		NWCUri: sealed,
	})
	if err != nil {
		log.Errorf("[onboard] could not store wallet of %s: %v", state.Npub, err)
		bot.abortOnboarding(msg)
		return
	}
	state.Kind = wallet.BackendNWC
	state.Step = stepAddress
	bot.reply(msg, askAddressMessage)
}

// provisionWallet creates a custodial sub-account on the backend.
func (bot *Bot) provisionWallet(msg queue.InboundMessage, state *onboardState) {
	label := str.TruncateLabel(
		str.SanitizeLabel(msg.Gateway.Kind)+"-"+str.SanitizeLabel(msg.Sender), maxLabelLength)
	account, err := bot.provision.CreateAccount(label)
	if err != nil {
		log.Errorf("[onboard] provisioning for %s failed: %v", state.Npub, err)
		bot.abortOnboarding(msg)
		return
	}
	err = bot.store.UpsertWallet(&wallet.Config{
		Npub:            state.Npub,
		Kind:            wallet.BackendLNbits,
		LNbitsWalletID:  account.WalletID,
		LNbitsAccountID: account.ID,
		LNbitsLabel:     account.Label,
	})
	if err != nil {
		log.Errorf("[onboard] could not store wallet of %s: %v", state.Npub, err)
		bot.abortOnboarding(msg)
		return
	}
	log.Infof("[onboard] provisioned wallet %s for %s", account.WalletID, state.Npub)
	state.Kind = wallet.BackendLNbits
	state.Step = stepAddress
	bot.reply(msg, askAddressMessage)
}

func (bot *Bot) finishOnboarding(msg queue.InboundMessage, state *onboardState, address string) {
	if address != "" {
		err := bot.store.UpsertWallet(&wallet.Config{
			Npub:             state.Npub,
			Kind:             state.Kind,
			LightningAddress: address,
		})
		if err != nil {
			log.Errorf("[onboard] could not store address of %s: %v", state.Npub, err)
			bot.abortOnboarding(msg)
			return
		}
	}
	runtime.IgnoreError(bot.publisher.SendEvent(queue.Event{
		Type: queue.EventNewUser,
		Npub: state.Npub,
	}))
	bot.onboarding.Remove(stateKey(msg.Gateway.Kind, msg.Sender))
	bot.reply(msg, fmt.Sprintf(onboardDoneMessage, state.Npub))
	log.Infof("[onboard] %s completed onboarding", state.Npub)
}

// abortOnboarding apologizes and resets the conversation. The npub link
// survives, the next message resumes at the backend choice.
func (bot *Bot) abortOnboarding(msg queue.InboundMessage) {
	bot.onboarding.Remove(stateKey(msg.Gateway.Kind, msg.Sender))
	bot.reply(msg, sorryMessage)
}
