package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	mochi "github.com/mochi-mqtt/server/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/config"
	"liyu1981.xyz/seizure-alert-service/pkg/db"
	iotGrpc "liyu1981.xyz/seizure-alert-service/pkg/grpc"
	iotHttp "liyu1981.xyz/seizure-alert-service/pkg/http"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
	iotMqtt "liyu1981.xyz/seizure-alert-service/pkg/mqtt"
	"liyu1981.xyz/seizure-alert-service/pkg/notify"
)

const (
	limiterPruneInterval = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Println("No .env file loaded, copy .env.example to .env first if in development")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := common.GetLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *firebase.App
	if cfg.DBType == config.DBTypeFirestore || cfg.Dispatcher == config.DispatcherFCM {
		if app, err = notify.NewFirebaseApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials); err != nil {
			log.Fatal(err)
		}
	}

	store, err := openStore(ctx, cfg, app)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	dispatcher, err := newDispatcher(ctx, cfg, app)
	if err != nil {
		log.Fatal(err)
	}

	iotCore := iot.New(store, dispatcher)
	iotCore.DirectDispatch = cfg.DirectDispatch

	logger.Info("IOT core created with:",
		zap.String("db_type", cfg.DBType),
		zap.String("dispatcher", cfg.Dispatcher),
		zap.Bool("direct_dispatch", cfg.DirectDispatch),
		zap.Bool("change_feed_notify", cfg.ChangeFeedNotify))

	var notifierDone <-chan struct{}
	if cfg.ChangeFeedNotify {
		notifierDone = iot.NewChangeTriggeredNotifier(store, dispatcher).Start(ctx)
	}

	var limiterStore *iot.RateLimiterStore
	if cfg.RateLimited() {
		limiterStore = iot.NewRateLimiterStore(rate.Limit(cfg.DefaultRate), cfg.DefaultBurst)
		go pruneLimiters(ctx, limiterStore)
		logger.Info("rate limiter created with:",
			zap.Float64("default_rate", cfg.DefaultRate),
			zap.Int("default_burst", cfg.DefaultBurst))
	}

	var grpcServer *grpc.Server
	if cfg.GrpcHostPort != "" {
		grpcServer = startGrpcServer(cfg.GrpcHostPort, iotCore, limiterStore)
	}

	var broker *mochi.Server
	if cfg.MqttHostPort != "" {
		broker = startMqttBroker(cfg.MqttHostPort, iotCore, limiterStore)
	}

	if common.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rs := &iotHttp.RestfulServer{
		Server:           gin.Default(),
		Iot:              iotCore,
		RateLimiterStore: limiterStore,
	}
	if !cfg.AllowAllOrigins() {
		rs.AllowOrigins = cfg.CorsAllowOrigins
	}
	rs.Setup()

	httpServer := &http.Server{Addr: cfg.HttpHostPort, Handler: rs.Server}
	go func() {
		logger.Info("Starting HTTP server on: " + cfg.HttpHostPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed to serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if broker != nil {
		_ = broker.Close()
	}

	if notifierDone != nil {
		<-notifierDone
	}
	logger.Info("Shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, app *firebase.App) (db.Store, error) {
	switch cfg.DBType {
	case config.DBTypeFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		return db.NewFirestoreStore(client), nil
	case config.DBTypeMemory:
		instance, err := db.Open(db.UseMemorySqliteDialector())
		if err != nil {
			return nil, err
		}
		return db.NewSqlStore(instance), nil
	default:
		instance, err := db.Open(db.UseSqliteDialectorAt(cfg.DBPath))
		if err != nil {
			return nil, err
		}
		return db.NewSqlStore(instance), nil
	}
}

func newDispatcher(ctx context.Context, cfg *config.Config, app *firebase.App) (notify.Dispatcher, error) {
	if cfg.Dispatcher == config.DispatcherFCM {
		return notify.NewFCMDispatcher(ctx, app)
	}
	return notify.LogDispatcher{}, nil
}

func pruneLimiters(ctx context.Context, limiterStore *iot.RateLimiterStore) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := limiterStore.Prune(limiterPruneInterval); removed > 0 {
				common.GetLogger().Info("pruned idle rate limiters", zap.Int("removed", removed))
			}
		}
	}
}

func startGrpcServer(hostPort string, iotCore *iot.IOT, limiterStore *iot.RateLimiterStore) *grpc.Server {
	deviceServer := &iotGrpc.DeviceServer{
		Iot:              iotCore,
		RateLimiterStore: limiterStore,
	}
	s := deviceServer.NewServer()

	listener, err := net.Listen("tcp", hostPort)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		common.GetLogger().Info("start gRPC server on " + hostPort)
		if err := s.Serve(listener); err != nil {
			log.Fatalf("grpc server failed to serve: %v", err)
		}
	}()

	return s
}

func startMqttBroker(hostPort string, iotCore *iot.IOT, limiterStore *iot.RateLimiterStore) *mochi.Server {
	broker, err := iotMqtt.NewBroker(hostPort, &iotMqtt.ReadingHook{
		Reading:          iotCore.Reading,
		RateLimiterStore: limiterStore,
	})
	if err != nil {
		log.Fatal(err)
	}

	common.GetLogger().Info("start MQTT broker on " + hostPort)
	if err := broker.Serve(); err != nil {
		log.Fatalf("mqtt broker failed to serve: %v", err)
	}
	return broker
}
