package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/covrs/covrs/internal/cli"
	"github.com/covrs/covrs/internal/parser/clover"
	"github.com/covrs/covrs/internal/parser/cobertura"
	"github.com/covrs/covrs/internal/parser/gocover"
	"github.com/covrs/covrs/internal/parser/istanbul"
	"github.com/covrs/covrs/internal/parser/jacoco"
	"github.com/covrs/covrs/internal/parser/lcov"

	coreparser "github.com/covrs/covrs/internal/parser"
	"github.com/covrs/covrs/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync() //nolint:errcheck

	cfg := cli.LoadConfig()
	dbPath := cli.ResolveDBPath(os.Args, cfg)

	ctx := context.Background()
	st, err := store.Open(ctx, dbPath, logger)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer st.Close()

	registry := coreparser.NewRegistry(
		lcov.New(),
		gocover.New(),
		istanbul.New(),
		jacoco.New(),
		cobertura.New(),
		clover.New(),
	)

	app := &cli.App{
		Store:    st,
		Registry: registry,
		Logger:   logger,
		Stdin:    os.Stdin,
		Config:   cfg,
	}

	return cli.Run(os.Args, os.Stdout, os.Stderr, app)
}
