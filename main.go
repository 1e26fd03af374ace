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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-engine/internal/cache"
	"chat-engine/internal/config"
	"chat-engine/internal/db"
	"chat-engine/internal/events"
	grpcserver "chat-engine/internal/grpc"
	"chat-engine/internal/handlers"
	"chat-engine/internal/logger"
	"chat-engine/internal/middleware"
	"chat-engine/internal/notify"
	"chat-engine/internal/objectstore"
	"chat-engine/internal/observability"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/repositories"
	"chat-engine/internal/scheduler"
	"chat-engine/internal/services"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

func main() {
	cfg, err := config.Load(".", "./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Production)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Service.Name, cfg.Service.Environment, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		zlog.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	store := repositories.NewStore(database)

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, zlog)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoute, cfg.Service.Name, cfg.Service.Environment, zlog)

	hub := ws.NewHub(zlog)
	dispatcher := notify.NewDispatcher(hub, zlog)
	bus := events.NewBus(zlog,
		services.NewReadTracker(store),
		notify.NewMessagePusher(store.Chats(), dispatcher),
		rabbitmq.NewMessageRelay(publisher),
	)

	uploads := objectstore.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.BaseURL)
	chatService := services.NewChatService(store, uploads, bus, dispatcher, cfg.Paging, zlog)
	scheduleService := services.NewScheduleService(store)

	var chatInfo middleware.ChatInfoSource = cache.NewLoader(store.Chats())
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Warn("redis unreachable, chat info lookups will hit the database", zap.Error(err))
		}
		chatInfo = cache.NewChatInfoCache(rdb, cache.NewLoader(store.Chats()), cfg.Redis.ChatTTL, zlog)
	}

	if cfg.Scheduler.Enabled {
		poller := scheduler.NewPoller(store.Schedules(), chatService, cfg.Scheduler, zlog)
		go poller.Run(ctx)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Service.Name))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.Static("/uploads", cfg.Uploads.Dir)

	api := router.Group("/", middleware.Identity())
	handlers.RegisterRoutes(api,
		handlers.NewChatHandler(chatService, auditEmitter, zlog),
		handlers.NewScheduleHandler(scheduleService, auditEmitter, zlog),
		chatInfo,
		zlog,
	)
	api.GET("/ws", ws.NewHandler(hub).Handle)
	handlers.RegisterDebugRoutes(api, auditEmitter, hub, cfg.Service.DebugRoutes)

	grpcSrv, healthSrv := grpcserver.NewServer()
	go grpcserver.MonitorDatabase(ctx, healthSrv, database, 15*time.Second, zlog)
	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		zlog.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			zlog.Error("grpc server stopped", zap.Error(err))
		}
	}()

	httpSrv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: router}
	go func() {
		zlog.Info("http server listening", zap.String("port", cfg.HTTP.Port), zap.String("grpc_port", cfg.GRPC.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		zlog.Warn("tracing shutdown", zap.Error(err))
	}
}
