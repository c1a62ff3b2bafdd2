package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/S0me0neR0man/ourpst/internal/config"
	"github.com/S0me0neR0man/ourpst/internal/httpapi"
	"github.com/S0me0neR0man/ourpst/internal/logger"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
	"github.com/S0me0neR0man/ourpst/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()
	sugar := lg.Sugar()

	store, err := pstdb.Open(cfg.PSTFile, pstdb.Options{Lenient: cfg.Lenient, MMap: cfg.MMap}, lg)
	if err != nil {
		sugar.Fatalw("open", "file", cfg.PSTFile, "error", err)
	}
	defer store.Close()
	sugar.Infow("container opened", "file", cfg.PSTFile, "format", store.DB().Format())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	g, ctx := errgroup.WithContext(ctx)
	if cfg.GRPCAddr != "" {
		s := server.NewGRPCServer(store, cfg.Token, lg)
		g.Go(func() error {
			defer s.Wait()
			return s.Start(ctx, cfg.GRPCAddr)
		})
	}
	if cfg.HTTPAddr != "" {
		g.Go(func() error {
			return serveHTTP(ctx, cfg.HTTPAddr, httpapi.New(store, cfg.Token, lg).Handler(), sugar)
		})
	}

	if err := g.Wait(); err != nil {
		sugar.Errorw("serve", "error", err)
	}
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, sugar *zap.SugaredLogger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			sugar.Errorw("http shutdown", "error", err)
		}
		sugar.Infow("httpserver stopped")
	}()

	sugar.Infow("httpserver start", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
