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

	"google.golang.org/grpc"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/config"
	"geovisor.org/internal/httpapi"
	"geovisor.org/internal/notifications"
	"geovisor.org/internal/obs"
	"geovisor.org/internal/reports"
	"geovisor.org/internal/store"
	"geovisor.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := obs.NewLogger(cfg.Log.Level, os.Stdout)
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit, cfg.DB.Driver)

	db, err := store.Open(cfg.DB)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.Ping(pingCtx); err != nil {
		// Start anyway; /readyz reports the outage until the database answers.
		logger.Warn("database_unreachable", "driver", cfg.DB.Driver, "error", err.Error())
	}
	cancel()

	codec, err := auth.NewCodec(auth.TokenConfig{
		Secret:    cfg.Auth.Secret,
		Algorithm: cfg.Auth.Algorithm,
		TTL:       cfg.Auth.TokenTTL,
		Issuer:    cfg.Auth.Issuer,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	events := stream.New()
	trusted, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Login:         auth.NewAuthenticator(db, codec),
		Resolver:      auth.NewResolver(db, codec),
		Reports:       reports.NewService(db, reports.WithPublisher(events)),
		Notifications: notifications.NewService(db),
		Reference:     db,
		Ready:         db,
		Events:        events,
		Version:       version,
	},
		httpapi.WithLoginRateLimit(cfg.RateLimit.Burst, cfg.RateLimit.PerSecond),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
		httpapi.WithTrustedProxies(trusted),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		// zero by default: the event stream holds responses open
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	srv.RegisterOnShutdown(events.Close)

	health := httpapi.NewHealthServer(db)
	go health.Run(ctx, 10*time.Second)

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(health)
		go func() {
			logger.Info("grpc_listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("grpc_serve_failed", "error", err.Error())
			}
		}()
	}

	go func() {
		logger.Info("http_listening", "addr", srv.Addr, "version", version, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err.Error())
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("stopped")
}
