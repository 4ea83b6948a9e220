package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"community-chat/internal/cache"
	"community-chat/internal/chat"
	"community-chat/internal/config"
	grpcserver "community-chat/internal/grpc"
	"community-chat/internal/handlers"
	"community-chat/internal/identity"
	"community-chat/internal/middleware"
	"community-chat/internal/observability"
	"community-chat/internal/presence"
	"community-chat/internal/rabbitmq"
	"community-chat/internal/repositories"
	"community-chat/internal/telemetry"
	"community-chat/internal/tracing"
	"community-chat/internal/ws"
)

const (
	serviceName         = "community-chat"
	healthCheckInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	probes := map[string]grpcserver.Probe{"store": st.probe}
	var users repositories.UserRepository = st.users
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		names := cache.NewNameCache(redisClient, st.users, cfg.NameCacheTTL, log)
		users = names
		probes["redis"] = names.Ping
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	observability.SetPublisher(publisher)
	log.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))
	probes["broker"] = func(context.Context) error {
		if !rabbitmq.Healthy(publisher) {
			return errors.New("broker connection closed")
		}
		return nil
	}
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment, log)

	var auth identity.Authenticator = identity.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, users)
	if st.memory != nil {
		auth = directoryRecorder{Authenticator: auth, users: st.memory}
	}

	hub := ws.NewHub(log)
	registry := presence.NewRegistry()
	locks := chat.NewRoomLocks()
	gate := chat.NewGate(st.rooms)
	engine := chat.NewEngine(gate, st.rooms, st.messages, users, hub, locks, cfg.PersistTimeout, log)
	tracker := chat.NewReadTracker(gate, st.messages, hub, locks, cfg.PersistTimeout, log)
	manager := ws.NewManager(hub, registry, gate, engine, tracker, ws.ManagerConfig{
		Client: ws.ClientConfig{
			WriteTimeout:    cfg.WSWriteTimeout,
			PongTimeout:     cfg.WSPongTimeout,
			SendBuffer:      cfg.WSSendBuffer,
			MaxMessageBytes: cfg.WSMaxMessageBytes,
		},
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
	}, log)
	wsHandler := ws.NewHandler(ctx, auth, manager, cfg.WSHandshakeTimeout, cfg.AllowedOrigins, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/chat", wsHandler.Handle)

	api := router.Group("/", middleware.AuthMiddleware(auth))
	handlers.RegisterRoutes(api,
		handlers.NewRoomHandler(st.rooms, users, audit, log),
		handlers.NewMessageHandler(engine, tracker, audit),
		handlers.NewPresenceHandler(manager),
	)
	handlers.RegisterDebugRoutes(router, audit, manager, cfg.DebugRoutes)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Device-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: cfg.WSHandshakeTimeout,
	}

	grpcServer := grpcserver.NewServer()
	health := grpcserver.NewHealthServer(probes, healthCheckInterval, log)
	health.Register(grpcServer)
	go health.Run(ctx)

	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Error("failed to listen for grpc", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error("grpc server stopped", "error", err)
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "error", err)
		}
	}()
	log.Info("community-chat started", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "store", cfg.StoreDriver)

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			// the broker and store close only after every websocket session ended
			var errs []error
			if err := httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http: %w", err))
			}
			if err := manager.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("websocket: %w", err))
			}
			cancel()
			if err := publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("publisher: %w", err))
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					errs = append(errs, fmt.Errorf("redis: %w", err))
				}
			}
			if err := st.close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("store: %w", err))
			}
			return errors.Join(errs...)
		},
		"grpc": func(ctx context.Context) error {
			health.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				grpcServer.Stop()
			}
			return nil
		},
		"tracing": shutdownTracing,
	})

	exitCode := <-wait
	log.Info("community-chat exited", "code", exitCode)
	os.Exit(exitCode)
}
