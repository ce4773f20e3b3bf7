package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"barbershop/backend/internal/auth"
	"barbershop/backend/internal/cache"
	"barbershop/backend/internal/config"
	"barbershop/backend/internal/metrics"
	"barbershop/backend/internal/service/accounts"
	"barbershop/backend/internal/service/barbers"
	"barbershop/backend/internal/service/booking"
	"barbershop/backend/internal/store/postgres"
	grpcTransport "barbershop/backend/internal/transport/grpc"
	"barbershop/backend/internal/transport/httpapi"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "barbershop-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "barbershop-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	db, err := postgres.Open(connectCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	cancelConnect()
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if cfg.RunMigrations {
		n, err := postgres.Migrate(ctx, db, cfg.MigrationsDir)
		if err != nil {
			log.Error("migrations failed", slog.Any("err", err), slog.String("dir", cfg.MigrationsDir))
			os.Exit(1)
		}
		log.Info("migrations applied", slog.Int("files", n))
	}

	appointmentRepo := postgres.NewAppointmentRepo(db)
	barberRepo := postgres.NewBarberRepo(db)
	userRepo := postgres.NewUserRepo(db)

	m := metrics.New()
	bookingOpts := []booking.Option{
		booking.WithLogger(log),
		booking.WithRecorder(m),
		booking.WithHorizon(booking.HorizonPolicy{Until: cfg.RecurrenceUntil, Span: cfg.RecurrenceHorizon}),
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable; occupied-times cache disabled", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		} else {
			log.Info("connected to redis", slog.String("redis_addr", cfg.RedisAddr))
			bookingOpts = append(bookingOpts, booking.WithCache(cache.NewOccupiedTimes(rdb, cfg.OccupiedCacheTTL)))
			defer func() {
				_ = rdb.Close()
			}()
		}
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	bookingSvc := booking.NewService(
		appointmentRepo,
		booking.NewDirectory(barberRepo, userRepo),
		cfg.Schedule,
		bookingOpts...,
	)
	barberSvc := barbers.NewService(barberRepo, log)
	accountSvc := accounts.NewService(userRepo, tokens, cfg.BcryptCost, log)

	if err := accountSvc.EnsureAdmin(ctx, accounts.AdminSeed{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
		Phone:    cfg.AdminPhone,
	}); err != nil {
		log.Error("admin bootstrap failed", slog.Any("err", err))
		os.Exit(1)
	}

	pinger := postgres.NewPinger(db)
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Bookings:       bookingSvc,
			Barbers:        barberSvc,
			Accounts:       accountSvc,
			Tokens:         tokens,
			Health:         pinger,
			Metrics:        m,
			Log:            log,
			RequestTimeout: cfg.HTTPRequestTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	monitor := grpcTransport.NewHealthMonitor(pinger, 5*time.Second, log)
	grpcServer := grpcTransport.NewServer(cfg.HTTPRequestTimeout, monitor)
	go monitor.Run(ctx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", cfg.GRPCAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
			shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, h *http.Server, g *grpc.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		g.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("servers stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		g.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
