package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"storefront/internal/cache"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/metrics"
	"storefront/internal/orders"
	"storefront/internal/outbox"
	"storefront/internal/repository"
)

func main() {
	config.Load()
	gin.SetMode(config.AppEnv.GinMode)

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()

	db := client.Database(config.AppEnv.DBName)
	log.Println("MongoDB connected to:", db.Name())

	database.EnsureAll(db)

	var cartCache cache.CartCache = cache.NoopCache{}
	if config.AppEnv.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.AppEnv.RedisAddr,
			Password: config.AppEnv.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[CACHE] [WARN] redis unavailable, carts will not be cached: %v", err)
		} else {
			cartCache = cache.NewRedisCache(rdb)
			log.Println("[CACHE] [INFO] redis connected:", config.AppEnv.RedisAddr)
		}
	}

	carts := repository.NewCartRepository(db)
	products := repository.NewProductRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	serverMetrics := metrics.New("api")

	cartService := cart.NewService(carts, products, cartCache)
	checkoutService := checkout.NewService(checkout.Deps{
		Tx:        repository.NewMongoTransactor(client),
		Checkouts: repository.NewCheckoutRepository(db),
		Orders:    repository.NewOrderRepository(db),
		Carts:     carts,
		Outbox:    outboxRepo,
		CartCache: cartService,
		Observer:  serverMetrics,
	})
	orderService := orders.NewService(repository.NewOrderRepository(db), repository.NewUserRepository(db))

	handlers.SetRequestTimeout(config.AppEnv.RequestTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if brokers := outbox.ParseBrokers(config.AppEnv.KafkaBrokers); len(brokers) > 0 {
		poller := outbox.NewPoller(outboxRepo, outbox.NewKafkaWriter(brokers, config.AppEnv.KafkaTopic))
		go poller.Run(ctx)
		log.Printf("[OUTBOX] [INFO] publishing to topic=%s brokers=%v", config.AppEnv.KafkaTopic, brokers)
	} else {
		log.Println("[OUTBOX] [INFO] KAFKA_BROKERS not set, publisher disabled")
	}

	r := handlers.NewRouter(handlers.Dependencies{
		Checkouts: checkoutService,
		Orders:    orderService,
		Carts:     cartService,
		Products:  products,
		DB:        database.ClientPinger{Client: client},
		Metrics:   serverMetrics,
		JWTSecret: config.AppEnv.JWTSecret,
	})

	srv := &http.Server{
		Addr:              ":" + config.AppEnv.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("[HTTP] [INFO] listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[HTTP] [ERROR] server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[HTTP] [INFO] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] [ERROR] shutdown: %v", err)
	}
}
