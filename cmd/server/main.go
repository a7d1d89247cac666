package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-gateway/config"
	"storefront-gateway/internal/api"
	"storefront-gateway/internal/backend"
	"storefront-gateway/internal/broker"
	"storefront-gateway/internal/notify"
	"storefront-gateway/internal/service"
	"storefront-gateway/internal/storage"
	"storefront-gateway/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront gateway")

	tp, err := util.InitTracer("storefront-gateway", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open client-state storage: %v", err)
	}
	defer store.Close()
	log.Printf("Client-state storage ready (%s)", cfg.Storage.Driver)

	var producer *broker.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		log.Println("Kafka producer initialized")
	}
	events := broker.NewEventPublisher(producer)

	client := backend.NewClient(cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
	hub := notify.NewHub()

	devices := service.NewDeviceService(store)
	sessions := service.NewSessionService(store, client, devices, events)
	pricing := service.NewPricingService(client, sessions)
	cart := service.NewCartService(client, sessions, hub,
		time.Duration(cfg.Business.CartSyncDebounceMs)*time.Millisecond,
		time.Duration(cfg.Business.CartListDebounceMs)*time.Millisecond)
	payments := service.NewPaymentService(client, sessions, cart, store, events, hub,
		time.Duration(cfg.Business.OrderValidityDays)*24*time.Hour,
		cfg.Business.OrdersPageSize)
	reconciler := service.NewReconciler(store, client, sessions, cart, events, hub)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(sessions, pricing, cart, payments, reconciler, hub)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
