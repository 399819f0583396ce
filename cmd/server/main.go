// Command server runs the pharmacy WhatsApp inbox: it receives gateway
// webhooks, dispatches operator replies and streams changes to the console.
//
// @title          WhatsApp Inbox API
// @version        1.0
// @description    Pharmacy WhatsApp inbox: gateway webhooks, operator dispatch, history and unread sync.
// @BasePath       /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-whatsapp-inbox/docs"
	"github.com/tbourn/go-whatsapp-inbox/internal/config"
	"github.com/tbourn/go-whatsapp-inbox/internal/evolution"
	httpapi "github.com/tbourn/go-whatsapp-inbox/internal/http"
	"github.com/tbourn/go-whatsapp-inbox/internal/media"
	"github.com/tbourn/go-whatsapp-inbox/internal/observability"
	"github.com/tbourn/go-whatsapp-inbox/internal/realtime"
	"github.com/tbourn/go-whatsapp-inbox/internal/repo"
	"github.com/tbourn/go-whatsapp-inbox/internal/services"
	"github.com/tbourn/go-whatsapp-inbox/internal/storage"
	"github.com/tbourn/go-whatsapp-inbox/internal/sysutil"
)

var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store, err := storage.New(ctx, cfg.Storage, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open media storage")
	}
	mat := media.NewMaterializer(store, cfg.MaxBodyBytes, log.Logger)
	gateway := evolution.New(cfg.Evolution.Timeout, cfg.Evolution.TextRetries, log.Logger)

	// Realtime: broker → hub, broker → unread synchronizer, broker → AMQP.
	broker := realtime.NewBroker(256, log.Logger)
	hub := realtime.NewHub(cfg.Realtime.WSOrigins, log.Logger)
	unread := realtime.NewUnreadSynchronizer(db, broker, hub, log.Logger)
	hub.OnRegister(func(c *realtime.Client) {
		c.SendJSON(realtime.UnreadFrame(unread.Count()))
	})
	hubSub := hub.Follow(broker)
	go hub.Run(ctx)
	if err := unread.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("unread synchronizer")
	}

	var mirror *realtime.AMQPMirror
	if cfg.Realtime.AMQPURL != "" {
		mirror, err = realtime.DialAMQPMirror(cfg.Realtime.AMQPURL, cfg.Realtime.AMQPExchange, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp mirror")
		}
		mirror.Attach(broker)
	}

	identity := services.NewIdentityService(db, log.Logger)
	convs := services.NewConversationService(db, log.Logger)
	deps := httpapi.Deps{
		DB:            db,
		Ingest:        services.NewIngestService(db, identity, convs, mat, broker, cfg.Location(), log.Logger),
		Dispatch:      services.NewDispatchService(db, convs, mat, gateway, broker, cfg.IdempotencyTTL, cfg.Location(), log.Logger),
		Messages:      &services.MessageService{DB: db},
		Conversations: convs,
		Unread:        unread,
		Hub:           hub,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("api", cfg.APIBasePath).
			Str("db", cfg.DB.Driver).
			Str("storage", cfg.Storage.Driver).
			Bool("amqp", mirror != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	unread.Disconnect()
	broker.Unsubscribe(hubSub)
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			log.Warn().Err(err).Msg("amqp close")
		}
	}
	broker.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
}
