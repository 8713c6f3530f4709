package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-room-interactions/internal/config"
	"github.com/iliyamo/live-room-interactions/internal/database"
	"github.com/iliyamo/live-room-interactions/internal/fanout"
	"github.com/iliyamo/live-room-interactions/internal/handler"
	"github.com/iliyamo/live-room-interactions/internal/ledger"
	"github.com/iliyamo/live-room-interactions/internal/payment"
	"github.com/iliyamo/live-room-interactions/internal/queue"
	"github.com/iliyamo/live-room-interactions/internal/repository"
	"github.com/iliyamo/live-room-interactions/internal/reveal"
	"github.com/iliyamo/live-room-interactions/internal/router"
	"github.com/iliyamo/live-room-interactions/internal/serve"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()
	store := repository.NewStore(db)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting, caching and cues disabled")
	}

	var provider payment.Provider
	if cfg.PaymentURL != "" {
		provider = payment.NewHTTPProvider(cfg.PaymentURL, cfg.PaymentToken)
	} else {
		if cfg.Env == "prod" {
			log.Fatalf("PAYMENT_URL is required in prod")
		}
		log.Printf("no payment provider configured, authorizing everything")
		provider = payment.NoopProvider{}
	}
	payments := payment.NewEntitlements(provider, store.Entitlements, store.Ledger)

	// Durable change-feed.  A missing broker URL disables the feed; clients
	// fall back to the poller snapshots.
	var feed ledger.Feed
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL)
		defer pub.Close()
		feed = pub
	} else {
		log.Printf("no rabbitmq url configured, change-feed disabled")
		feed = noopFeed{}
	}

	cues := fanout.NewCueBus(rdb)
	hub := fanout.NewHub()

	// One timer set shared by the ledger and the serve controller: serving
	// a new request cancels the pending reveal of the previous one.
	suspense := reveal.NewTimers()
	defer suspense.CancelAll()

	ledgerSvc := ledger.NewService(store, payments, feed, cues, suspense)
	serveCtl := serve.NewController(store, ledgerSvc, cues, suspense)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Both feeds converge on the hub, which fans them out per room.
	if cfg.RabbitURL != "" {
		go queue.StartChangeFeedConsumer(cfg.RabbitURL, hub.ForwardRow)
	}
	go cues.Subscribe(ctx, hub.ForwardCue)
	go fanout.NewPoller(hub, store, 15*time.Second).Run(ctx)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, router.Handlers{
		Auth:        handler.NewAuthHandler(cfg, store.Users, store.Tokens),
		Session:     handler.NewSessionHandler(ledgerSvc),
		Serve:       handler.NewServeHandler(serveCtl, ledgerSvc),
		Participant: handler.NewParticipantHandler(ledgerSvc, serveCtl, payments, store),
		WS:          handler.NewWSHandler(hub, store, cfg.JWTSecret),
	}, rdb)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

// noopFeed swallows change-feed events when no broker is configured.
type noopFeed struct{}

func (noopFeed) Publish(ctx context.Context, ev queue.RowEvent) error { return nil }
