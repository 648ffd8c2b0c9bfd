package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/daemon"
	"github.com/lostfound/chatsync/internal/lock"
	"github.com/lostfound/chatsync/internal/profile"
	"github.com/lostfound/chatsync/internal/rest"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"github.com/lostfound/chatsync/internal/tui"
	"github.com/lostfound/chatsync/internal/tui/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	name, err := profile.Resolve(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		engine *intsync.Engine
		db     *store.DB
		client *rest.Client
		b      *bus.Bus
		logger *zap.Logger
	)
	app := fx.New(
		daemon.Core(daemon.Params{Profile: name, Program: "chattui"}),
		fx.NopLogger,
		fx.Populate(&engine, &db, &client, &b, &logger),
	)
	if err := app.Err(); err != nil {
		var held *lock.LockHeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "error: %v\nstop it or pick another profile with --profile\n", held)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	vm := model.NewViewModel(engine, db, client, b, logger)
	runErr := tui.NewApp(vm, name, logger).Run(ctx)

	if err := app.Stop(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
