// Command sitetime-server serves the reporting API over gRPC.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/sitetime/internal/cache"
	"github.com/and161185/sitetime/internal/config"
	"github.com/and161185/sitetime/internal/limiter"
	"github.com/and161185/sitetime/internal/migrate"
	"github.com/and161185/sitetime/internal/observe"
	"github.com/and161185/sitetime/internal/repository/postgres"
	grpcserver "github.com/and161185/sitetime/internal/server/grpc"
	"github.com/and161185/sitetime/internal/service"
	"github.com/and161185/sitetime/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// overlay copies explicitly set flags into v so they win over file and environment.
func overlay(fs *flag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "env-file":
			return
		}
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})
}

// main loads configuration, runs migrations, warms the cache and starts the gRPC server.
func main() {
	// Flags
	cfgFile := flag.String("config", "", "YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file")
	flag.String("addr", ":8443", "listen address")
	flag.String("dsn", "", "PostgreSQL DSN")
	flag.String("jwt-key", "", "HS256 signing key (required)")
	flag.Duration("access-ttl", 12*time.Hour, "access token TTL")
	flag.Duration("cache-ttl", 5*time.Minute, "aggregate cache TTL")
	flag.String("tls-cert", "", "TLS certificate (PEM)")
	flag.String("tls-key", "", "TLS private key (PEM)")
	flag.Bool("dev", false, "enable server reflection (dev only)")
	flag.Parse()

	v := config.New()
	overlay(flag.CommandLine, v)

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(v, *cfgFile, *envFile)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	var opts []grpc.ServerOption
	switch {
	case cfg.TLSCert != "" && cfg.TLSKey != "":
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	case cfg.Dev:
		logger.Warn("serving without TLS")
	default:
		logger.Fatal("tls-cert and tls-key are required outside dev mode")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()
	stores := db.Stores()

	lim := limiter.NewPG(db.Pool, cfg.LimiterWindow, cfg.LimiterMaxFails, cfg.LimiterBlock)
	issuer := token.NewIssuer([]byte(cfg.JWTKey), cfg.AccessTTL)
	obs := observe.NewZap(logger)

	// Services
	authSvc := service.NewAuthService(stores.Users, issuer, lim)
	dataSvc := service.NewDataService(stores, cache.New(cfg.CacheTTL, cache.WithObserver(obs)), obs, logger)
	if err := dataSvc.Initialize(ctx); err != nil {
		// reads retry on demand
		logger.Warn("cache warm-up incomplete", zap.Error(err))
	}

	// gRPC server with interceptors
	opts = append(opts, grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(logger),
		grpcserver.LoggingUnary(logger),
		grpcserver.AuthUnary(issuer, grpcserver.PublicMethods()...),
	))
	s := grpc.NewServer(opts...)
	grpcserver.Register(s, grpcserver.New(authSvc, dataSvc))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
