package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/plan-chat/config"
	"github.com/cwrk-planet/plan-chat/internal/badgerstore"
	"github.com/cwrk-planet/plan-chat/internal/cache"
	"github.com/cwrk-planet/plan-chat/internal/events"
	"github.com/cwrk-planet/plan-chat/internal/memory"
	"github.com/cwrk-planet/plan-chat/internal/observability"
	"github.com/cwrk-planet/plan-chat/internal/postgres"
	"github.com/cwrk-planet/plan-chat/internal/security"
	"github.com/cwrk-planet/plan-chat/internal/service"
	grpcx "github.com/cwrk-planet/plan-chat/internal/transport/grpc"
	httpx "github.com/cwrk-planet/plan-chat/internal/transport/http"
	"github.com/cwrk-planet/plan-chat/internal/transport/ws"
	"github.com/cwrk-planet/plan-chat/migrations"
	"github.com/cwrk-planet/plan-chat/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting plan-chat",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("plan-chat stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	// --- postgres (plan aggregate, and messages for the postgres driver) ---
	var pool *pgxpool.Pool
	if cfg.Postgres.DSN != "" {
		p, err := postgres.NewPool(ctx, cfg.Postgres.ToPGConfig())
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer p.Close()
		pool = p
		log.Info("connected to postgres")

		if cfg.Postgres.Migrate {
			applied, err := postgres.Migrate(ctx, pool, migrations.FS)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "versions", applied)
		}
	}

	// --- message store ---
	var store service.MessageStore
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store = postgres.NewMessageRepository(pool)
	case config.DriverBadger:
		bs, err := badgerstore.Open(cfg.Storage.BadgerPath, log)
		if err != nil {
			return fmt.Errorf("badger: %w", err)
		}
		closers = append(closers, bs)
		store = bs
	default:
		store = memory.NewMessageStore()
	}

	// --- membership oracle & user directory ---
	var (
		oracle service.MembershipOracle
		users  service.UserDirectory
	)
	if pool != nil {
		plans := postgres.NewPlanRepository(pool)
		oracle, users = plans, plans
	} else {
		log.Warn("no postgres dsn: using an empty in-memory plan directory")
		dir := memory.NewDirectory()
		oracle, users = dir, dir
	}
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.ToCacheConfig())
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, client)
		oracle = cache.NewRoleCache(client, oracle, cfg.Redis.RoleTTL, "", log)
		log.Info("role cache enabled", "addr", cfg.Redis.Addr)
	}

	// --- security ---
	vc, err := cfg.Security.JWT.VerifierConfig()
	if err != nil {
		return fmt.Errorf("jwt key: %w", err)
	}
	verifier, err := security.NewJWTVerifier(vc)
	if err != nil {
		return err
	}

	// --- services ---
	authSvc := service.NewAuthService(verifier, users)
	memberSvc := service.NewMembershipService(oracle)
	historySvc := service.NewHistoryService(store, memberSvc)
	chatSvc := service.NewChatService(store, cfg.Chat.MaxMessageLength)

	// --- hub ---
	deps := ws.HubDeps{Membership: memberSvc, History: historySvc, Chat: chatSvc}
	var hub *ws.Hub
	metrics, err := observability.New(otel.GetMeterProvider(), func() int { return hub.RoomCount() })
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	deps.Metrics = metrics

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, cfg.Logging.Service, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()
		deps.Publisher = events.NewPublisher(nc, cfg.NATS.SubjectPrefix, metrics, log)
		log.Info("nats publisher enabled", "url", cfg.NATS.URL)
	}
	hub = ws.NewHub(deps)
	wsServer := ws.NewServer(hub, authSvc, cfg.Websocket.ToWSConfig(), cfg.CORS.AllowedOrigins, metrics)

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(historySvc, memberSvc, hub),
		Auth:           authSvc,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	httpSrv := httpx.NewServer(httpx.Config{
		Addr:        cfg.HTTP.Addr,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
	}, router)

	// --- gRPC ---
	var (
		grpcLis    net.Listener
		grpcServer = grpcx.New(grpcx.NewServer(authSvc, historySvc))
	)
	if cfg.GRPC.Addr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listen", "addr", cfg.HTTP.Addr)
		return httpSrv.Run(gctx)
	})
	if grpcLis != nil {
		g.Go(func() error {
			log.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown: closing websocket connections")
		hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
