package bot

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal/queue"
	"github.com/satsflow/SatsFlowBot/internal/runtime"
	"github.com/satsflow/SatsFlowBot/internal/storage"
	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

// handleApproval executes the pending payment after a "yes". The payment is
// popped before dispatch, a repeated "yes" is a no-op even when the dispatch
// itself fails.
func (bot *Bot) handleApproval(msg queue.InboundMessage, npub string) {
	pending, err := bot.pending.PopPending(npub)
	if err != nil {
		log.Errorf("[approve] could not pop pending payment of %s: %v", npub, err)
		bot.reply(msg, sorryMessage)
		return
	}
	if pending == nil {
		log.Debugf("[approve] %s approved but nothing is pending", npub)
		return
	}

	log.Infof("[approve] %s approved request %s", npub, pending.Request.RequestID)
	outcome := bot.dispatcher.Dispatch(npub, pending.Request)

	if outcome.Success {
		body := paymentSentMessage
		if outcome.Preimage != "" {
			body += fmt.Sprintf(paymentProofMessage, outcome.Preimage)
		}
		if balance, err := bot.dispatcher.Balance(npub); err == nil {
			body += fmt.Sprintf(balanceAfterMessage, wallet.DisplaySats(balance))
		}
		bot.reply(msg, body)
	} else {
		bot.reply(msg, fmt.Sprintf(paymentFailedMessage, outcome.Error))
	}

	bot.publishResult(npub, pending.Request.RequestID, outcome)
}

func (bot *Bot) publishResult(npub, requestID string, outcome wallet.Outcome) {
	status := queue.StatusRejected
	if outcome.Success {
		status = queue.StatusPaid
	}
	runtime.IgnoreError(bot.publisher.SendEvent(queue.Event{
		Type:      queue.EventPaymentResult,
		Npub:      npub,
		RequestID: requestID,
		Status:    status,
		Detail:    outcome.Error,
	}))
}

// HandlePaymentRequest takes an upstream spend request, stores it as the
// user's pending payment (replacing any previous one) and asks the user for
// approval in chat.
func (bot *Bot) HandlePaymentRequest(msg queue.PaymentRequestMessage) {
	npub := msg.Npub
	if npub == "" {
		var err error
		npub, err = bot.store.FindNpub(msg.Gateway.Kind, msg.Sender)
		if err != nil || npub == "" {
			log.Warnf("[approve] payment request %s for unknown user %s/%s dropped",
				msg.Request.RequestID, msg.Gateway.Kind, msg.Sender)
			return
		}
	}

	gatewayKind, gatewayUser, err := bot.store.FindGateway(npub)
	if err != nil || gatewayUser == "" {
		log.Warnf("[approve] no chat gateway for %s, request %s dropped", npub, msg.Request.RequestID)
		return
	}

	if err := bot.pending.SetPending(&storage.PendingPayment{Npub: npub, Request: msg.Request}); err != nil {
		log.Errorf("[approve] could not store pending payment of %s: %v", npub, err)
		return
	}

	log.Infof("[approve] request %s pending approval of %s", msg.Request.RequestID, npub)
	bot.send(gatewayUser, queue.GatewayInfo{Kind: gatewayKind}, nil,
		fmt.Sprintf(approvalPromptMessage, describePayment(msg.Request)))
}

func describePayment(req wallet.PaymentRequest) string {
	switch req.Kind {
	case wallet.PaymentAddress:
		return fmt.Sprintf("%d sat to %s", wallet.DisplaySats(req.AmountMsat), req.Address)
	default:
		invoice := req.Invoice
		if len(invoice) > 24 {
			invoice = invoice[:24] + "..."
		}
		if req.AmountMsat > 0 {
			return fmt.Sprintf("%d sat, invoice %s", wallet.DisplaySats(req.AmountMsat), invoice)
		}
		return "invoice " + invoice
	}
}
