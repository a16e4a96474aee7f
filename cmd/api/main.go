package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"huntcall/config"
	"huntcall/internal/commands"
	"huntcall/internal/events"
	"huntcall/internal/handler"
	"huntcall/internal/media"
	"huntcall/internal/proxy"
	redisclient "huntcall/internal/redis"
	"huntcall/internal/repository"
	"huntcall/internal/server"
	"huntcall/internal/services"
	"huntcall/internal/storage"
	"huntcall/internal/websocket"
	"huntcall/pkg/database"
	"huntcall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.IsRelease() {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Database
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := repository.InitSchema(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	rdb := redisclient.NewClient(redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := redisclient.Ping(ctx, rdb); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	serverID := cfg.ServerID
	if serverID == "" {
		serverID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, logger.ServerIdKey, serverID)
	l = &logger.Logger{Logger: l.Logger.With(zap.String("server_id", serverID))}

	registry := redisclient.NewRegistry(rdb, serverID)
	if _, err := registry.Register(ctx); err != nil {
		log.Fatalf("Failed to register server: %v", err)
	}
	locker := redisclient.NewLocker(rdb, serverID, redisclient.LockConfig{
		TTL:        cfg.LockTTL,
		Wait:       cfg.LockWait,
		RetryDelay: cfg.LockRetryDelay,
	})

	fanout := events.NewFanout(redisclient.NewSubscriber(rdb), l)
	notifier := events.NewRedisNotifier(redisclient.NewPublisher(rdb), events.NewCallChannelResolver(), serverID)

	authorizer := proxy.NewClaimsAuthorizer()
	bus := commands.NewBus(
		proxy.NewAccessControl(redisclient.NewFlagStore(rdb)),
		proxy.NewHuntMembership(authorizer),
		proxy.NewJoinRateLimit(redisclient.NewRateLimiter(rdb, redisclient.RateLimitConfig{
			JoinLimit:  cfg.JoinLimit,
			JoinWindow: cfg.JoinWindow,
		})),
	)

	engine, err := media.NewPionEngine(media.PionConfig{
		ICEServers: cfg.ICEServers,
		UDPPortMin: cfg.MediaUDPPortMin,
		UDPPortMax: cfg.MediaUDPPortMax,
	}, l)
	if err != nil {
		log.Fatalf("Failed to start media engine: %v", err)
	}
	defer engine.Close()

	var archive services.ObjectStore
	s3cfg := storage.S3Config{
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Endpoint:  cfg.S3Endpoint,
	}
	if s3cfg.Configured() {
		client, err := storage.NewClient(ctx, s3cfg)
		if err != nil {
			log.Fatalf("Failed to create s3 client: %v", err)
		}
		archive = client
	}

	repos := repository.NewPostgresRepositories(db)
	authService := services.NewAuthService(cfg.JWTSecret, time.Duration(cfg.JWTExpiryMin)*time.Minute)
	rooms := services.NewRoomService(repos, locker, registry, notifier, cfg.DeadServerAge, l)
	negotiationService := services.NewNegotiationService(repos, notifier, serverID, bus, l)
	peers := services.NewPeerService(repos, rooms, negotiationService, locker, authorizer, notifier,
		services.PeerConfig{ServerID: serverID, CrowdSize: cfg.CrowdSize}, bus, l)
	feed := services.NewRoomFeed(repos, fanout, cfg.FeedPollInterval, l)
	debug := services.NewDebugService(repos, registry, archive, l)

	heartbeater := services.NewHeartbeater(registry, cfg.HeartbeatInterval, l)
	worker := services.NewRouterWorker(repos, engine, notifier, serverID, cfg.WorkerInterval, l)
	gc := services.NewGarbageCollector(repos, rooms, locker, registry, notifier, cfg.DeadServerAge, cfg.GCInterval, l)

	go func() {
		if err := fanout.Run(ctx, nil); err != nil && ctx.Err() == nil {
			l.Errorf("event fanout stopped: %v", err)
		}
	}()
	wake, unwatch := fanout.Watch(events.ServerChannel(serverID))
	defer unwatch()

	heartbeater.Start(ctx)
	worker.Start(ctx, wake)
	gc.Start(ctx)

	hub := websocket.NewHub()
	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Calls:     handler.NewCallHandler(peers),
		Debug:     handler.NewDebugHandler(debug),
		WebSocket: websocket.NewHandler(ctx, authService, hub, bus, peers, feed, websocket.NewWebSocketLogger(l)),
	}, authService, server.Dependencies{DB: db, Redis: rdb})

	l.Infof("Server %s joined the fleet", serverID)
	if err := srv.Start(ctx); err != nil {
		l.Errorf("server stopped with error: %v", err)
	}

	// Disconnect cleanups must finish before the database closes. Anything
	// they miss is removed by the other servers' GC once our heartbeat is
	// stale; the registry entry is never removed here.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 20*time.Second)
	if err := hub.Shutdown(drainCtx); err != nil {
		l.Warnf("sessions still closing at shutdown: %v", err)
	}
	cancelDrain()
	gc.Stop()
	worker.Stop()
	heartbeater.Stop()
}
