package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	nbat "github.com/notebook-infra/nb-acceptor"
	"github.com/notebook-infra/nb-acceptor/exitcodes"
	"github.com/notebook-infra/nb-acceptor/flags"
	"github.com/notebook-infra/nb-acceptor/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "nb-acceptor"
	app.Usage = "Notebook Acceptance Tester Service"
	app.Description = "nb-acceptor verifies that every tracked notebook runs cleanly against the released library"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if nbat.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if nbat.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start healthz and metrics servers
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(ctx.String(flags.LogLevel.Name))); err != nil {
		return nbat.NewRuntimeError(fmt.Errorf("invalid log level: %w", err))
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true))
	log.SetDefault(logger)

	cfg, err := nbat.NewConfig(ctx, logger)
	if err != nil {
		return nbat.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "repoDir", cfg.RepoDir, "mode", cfg.Mode, "workDir", cfg.WorkDir)

	acceptor, err := nbat.New(ctx.Context, cfg, Version)
	if err != nil {
		return err
	}

	return acceptor.Start(ctx.Context)
}
