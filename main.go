package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal"
	"github.com/satsflow/SatsFlowBot/internal/api"
	"github.com/satsflow/SatsFlowBot/internal/bot"
	"github.com/satsflow/SatsFlowBot/internal/database"
	"github.com/satsflow/SatsFlowBot/internal/lnbits"
	"github.com/satsflow/SatsFlowBot/internal/lnurl"
	"github.com/satsflow/SatsFlowBot/internal/nwc"
	"github.com/satsflow/SatsFlowBot/internal/price"
	"github.com/satsflow/SatsFlowBot/internal/queue"
	"github.com/satsflow/SatsFlowBot/internal/rate"
	"github.com/satsflow/SatsFlowBot/internal/secret"
	"github.com/satsflow/SatsFlowBot/internal/storage"
	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

// setLogger will initialize the log format
func setLogger() {
	log.SetLevel(log.DebugLevel)
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)
}

func main() {
	setLogger()
	defer withRecovery()
	internal.MustCheck()
	rate.Start()

	box, err := secret.NewBox(internal.Configuration.Bot.SecretboxKey)
	if err != nil {
		log.Fatalf("[main] bad secretbox key: %v", err)
	}

	db, err := database.Open(internal.Configuration.Database.DbPath)
	if err != nil {
		log.Fatalf("[main] could not open database: %v", err)
	}
	bunt := storage.NewBunt(internal.Configuration.Database.BuntDbPath)
	defer bunt.Close()

	client, err := queue.Dial(internal.Configuration.Queue.Url)
	if err != nil {
		log.Fatalf("[main] could not connect to queue broker: %v", err)
	}
	defer client.Close()
	client.OutboundQueue = internal.Configuration.Queue.OutboundQueue
	client.EventsQueue = internal.Configuration.Queue.EventsQueue

	resolver := lnurl.NewResolver()
	lnbitsClient := lnbits.NewClient(internal.Configuration.Lnbits.AdminKey, internal.Configuration.Lnbits.Url)
	dispatcher := wallet.NewDispatcher(
		wallet.NewResolver(db, box, internal.Configuration.Nwc.SharedUri),
		lnbitsClient,
		func(uri string) (wallet.NWCBackend, error) { return nwc.NewClient(uri, resolver) },
	)

	prices := price.NewWatcher()
	prices.Start()

	flowBot := bot.New(db, bunt, client, dispatcher, lnbitsClient, box, resolver).WithPrices(prices)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = client.Consume(ctx, internal.Configuration.Queue.InboundQueue, "inbound", func(body []byte) {
		msg := queue.InboundMessage{}
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Warnf("[main] dropping malformed inbound message: %v", err)
			return
		}
		flowBot.HandleInbound(msg)
	})
	if err != nil {
		log.Fatalf("[main] could not consume inbound queue: %v", err)
	}

	err = client.Consume(ctx, internal.Configuration.Queue.PaymentsQueue, "payments", func(body []byte) {
		msg := queue.PaymentRequestMessage{}
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Warnf("[main] dropping malformed payment request: %v", err)
			return
		}
		flowBot.HandlePaymentRequest(msg)
	})
	if err != nil {
		log.Fatalf("[main] could not consume payments queue: %v", err)
	}

	adminServer := api.NewServer(internal.Configuration.Bot.AdminAPIHost)
	api.NewService(db).Mount(adminServer, internal.Configuration.Bot.AdminAPIToken)

	log.Infof("[main] %s is up", internal.Configuration.Bot.Name)
	<-ctx.Done()
	log.Info("[main] shutting down")
}

func withRecovery() {
	if r := recover(); r != nil {
		log.Errorln("Recovered panic: ", r)
		debug.PrintStack()
	}
}
