package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagewatch/internal/app"
	"pagewatch/internal/config"
	logx "pagewatch/pkg/logx"
)

func main() {
	once := flag.Bool("once", false, "run a single check, print the result and exit without notifying")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-once]\n\nconfig file: $%s (default %s)\n",
			os.Args[0], config.EnvConfigPath, config.DefaultPath)
		flag.PrintDefaults()
	}
	flag.Parse()

	// .env first so it can also set PAGEWATCH_CONFIG.
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	cfgPath, explicit := config.ConfigPath(nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{
		ConfigPath:         cfgPath,
		AllowMissingConfig: !explicit,
		Once:               *once,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if *once {
		if err := a.RunOnce(ctx, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	reason := app.StopSignal
	<-a.Done()
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		reason = app.StopFatalError
		a.Logger().Error("fatal error", logx.Err(err))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		os.Exit(1)
	}
}
