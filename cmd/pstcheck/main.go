package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/S0me0neR0man/ourpst/internal/client"
	"github.com/S0me0neR0man/ourpst/internal/config"
	"github.com/S0me0neR0man/ourpst/internal/logger"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
	"github.com/S0me0neR0man/ourpst/internal/verify"
)

// pstcheck scans PST_FILE when it is set, otherwise it walks the folders
// served at GRPC_ADDR.
func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	var except []string
	if cfg.PSTFile == "" {
		except = []string{"PSTFile"}
	}
	if err := cfg.Validate(except...); err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	var ok bool
	if cfg.PSTFile != "" {
		ok, err = local(ctx, cfg, lg)
	} else {
		ok, err = remote(ctx, cfg, lg)
	}
	if err != nil {
		lg.Sugar().Errorw("check", "error", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

func local(ctx context.Context, cfg *config.Config, lg *zap.Logger) (bool, error) {
	store, err := pstdb.Open(cfg.PSTFile, pstdb.Options{MMap: cfg.MMap}, lg)
	if err != nil {
		return false, err
	}
	defer store.Close()

	rep, err := verify.NewChecker(store, cfg.Workers, lg).Run(ctx)
	if err != nil {
		return false, err
	}
	for _, i := range rep.Issues {
		fmt.Println(i)
	}
	fmt.Printf("%s: %d nodes, %d property contexts, %d tables, %d raw, %d structural, %d unsupported\n",
		cfg.PSTFile, rep.Nodes, rep.PCs, rep.TCs, rep.Raw,
		rep.Count(verify.KindStructural), rep.Count(verify.KindUnsupported))
	return rep.OK(), nil
}

func remote(ctx context.Context, cfg *config.Config, lg *zap.Logger) (bool, error) {
	c, err := client.NewGRPCClient(cfg.GRPCAddr, cfg.Token)
	if err != nil {
		return false, err
	}
	w := newWalker(c, cfg.Workers, lg)
	defer func() { _ = w.Close() }()

	sum, err := w.Walk(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range sum.Failures {
		fmt.Println(f)
	}
	fmt.Printf("%s: store %q, %d folders, %d messages, %d failures\n",
		cfg.GRPCAddr, sum.StoreName, sum.Folders, sum.Messages, len(sum.Failures))
	return len(sum.Failures) == 0, nil
}
