package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/config"
	"brdconsole.org/internal/mockapi"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/store"
	"brdconsole.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	profile := flag.String("profile", "", "YAML profile (BRD_PROFILE)")
	envFile := flag.String("env-file", "", "dotenv file, .env by default")
	flag.Parse()

	cfg, err := config.Load(config.Options{ProfilePath: *profile, EnvFile: *envFile})
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	if err := obs.SetLevel(cfg.Log.Level); err != nil {
		obs.Logger().Warn().Err(err).Msg("log level")
	}
	log := obs.Logger().With().Str("component", "brdadmin-mock").Logger()

	// Инициализация observability (метрики HTTP, build_info)
	obs.Init()
	obs.InitBuildInfo("brdadmin-mock", version, commit)

	// Хранилище: PostgreSQL, если задан DSN, иначе память процесса
	var st store.Store = store.NewMemory()
	if dsn := cfg.Mock.PGDSN; dsn != "" {
		pst, err := pg.Open(dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		// схема и сиды применяются идемпотентно при каждом старте
		migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
		steps, err := pst.Apply(migCtx)
		migCancel()
		if err != nil {
			log.Fatal().Err(err).Msg("apply migrations")
		}
		st = pst
		log.Info().Int("applied", len(steps)).Msg("using postgres store")
	}

	signer, err := auth.NewSigner(cfg.Mock.AuthSecret, cfg.Mock.AccessTTL, cfg.Mock.RefreshTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token signer")
	}

	api := mockapi.New(st, signer,
		mockapi.WithVersion(version),
		mockapi.WithRateLimit(cfg.Mock.RateBurst, cfg.Mock.RatePerSec),
	)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = api.Seed(seedCtx, cfg.Mock.SeedEmail, cfg.Mock.SeedPassword)
	seedCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("seed")
	}

	srv := &http.Server{
		Addr:              cfg.Mock.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting")

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// gRPC health для оркестратора (опционально)
	healthCtx, healthCancel := context.WithCancel(context.Background())
	var grpcSrv *grpc.Server
	if cfg.Mock.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Mock.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("grpc listen")
		}
		hs := mockapi.NewHealthService(mockapi.ReadyCheck{Store: st}, 10*time.Second)
		grpcSrv = grpc.NewServer()
		hs.Register(grpcSrv)
		go hs.Run(healthCtx)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc serve")
			}
		}()
		log.Info().Str("addr", cfg.Mock.GRPCAddr).Msg("grpc health listening")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")
	healthCancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if err := st.Close(); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
	log.Info().Msg("stopped")
}
