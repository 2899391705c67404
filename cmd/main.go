package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/crackzone/teams/internal/api"
	"github.com/crackzone/teams/internal/auth"
	"github.com/crackzone/teams/internal/config"
	"github.com/crackzone/teams/internal/db"
	"github.com/crackzone/teams/internal/events"
	"github.com/crackzone/teams/internal/repository"
	"github.com/crackzone/teams/internal/repository/memory"
	"github.com/crackzone/teams/internal/service"
	"github.com/crackzone/teams/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const version = "v0.1.0"

type repos struct {
	tx          db.Transactor
	users       repository.UserRepository
	teams       repository.TeamRepository
	members     repository.MemberRepository
	requests    repository.JoinRequestRepository
	invitations repository.InvitationRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logger.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting application", zap.String("env", cfg.Env), zap.String("storage", cfg.Storage))

	auth.TokenSecretKey = cfg.TokenSecret

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		r      repos
		checks []health.Config
	)
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		r = repos{
			tx:          store,
			users:       store.Users(),
			teams:       store.Teams(),
			members:     store.Members(),
			requests:    store.JoinRequests(),
			invitations: store.Invitations(),
		}
		logger.Warn("using in-memory storage, state is lost on restart")
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err = pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("database connection established")

		if cfg.AutoMigrate {
			if err = db.Migrate(ctx, pool); err != nil {
				logger.Fatal("failed to apply schema", zap.Error(err))
			}
			logger.Info("schema applied")
		}

		r = repos{
			tx:          db.NewPgxTransactor(pool, cfg.TxMaxRetries),
			users:       repository.NewPgxUserRepository(pool),
			teams:       repository.NewPgxTeamRepository(pool),
			members:     repository.NewPgxMemberRepository(pool),
			requests:    repository.NewPgxJoinRequestRepository(pool),
			invitations: repository.NewPgxInvitationRepository(pool),
		}
		checks = append(checks, api.PostgresCheck(pool))
	}

	sink := events.NewLogSink(logger)
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis is unreachable at startup", zap.Error(err))
		}

		sink = events.NewMultiSink(sink, events.NewRedisSink(client, cfg.Redis.Channel))
		checks = append(checks, api.RedisCheck(client))
		logger.Info("publishing events to redis", zap.String("channel", cfg.Redis.Channel))
	}

	team := service.NewTeamService(r.tx).
		WithTeamRepo(r.teams).
		WithMemberRepo(r.members).
		WithJoinRequestRepo(r.requests).
		WithInvitationRepo(r.invitations).
		WithEventSink(sink)
	user := service.NewUserService(r.tx).
		WithUserRepo(r.users).
		WithMemberRepo(r.members)
	requests := service.NewJoinRequestService(r.tx).
		WithTeamRepo(r.teams).
		WithMemberRepo(r.members).
		WithJoinRequestRepo(r.requests).
		WithEventSink(sink)
	invitations := service.NewInvitationService(r.tx).
		WithUserRepo(r.users).
		WithTeamRepo(r.teams).
		WithMemberRepo(r.members).
		WithJoinRequestRepo(r.requests).
		WithInvitationRepo(r.invitations).
		WithEventSink(sink)

	e := echo.New()
	e.HideBanner = true

	handler := api.NewHandler(logger).
		WithTeamService(team).
		WithUserService(user).
		WithJoinRequestService(requests).
		WithInvitationService(invitations).
		WithHealthChecker(api.MustNewHealthChecker(version, checks...))

	handler.RegisterRoutes(e)

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
