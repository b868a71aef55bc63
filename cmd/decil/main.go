package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"

	"github.com/macropower/decil/internal/cli"
	"github.com/macropower/decil/pkg/telemetry"
	"github.com/macropower/decil/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	shutdown, err := telemetry.Init(ctx, "decil", version.GetVersion())
	if err != nil {
		slog.Error("init telemetry", slog.Any("err", err))
		stop()
		os.Exit(1)
	}

	err = fang.Execute(ctx, cli.NewRootCmd(),
		fang.WithVersion(version.GetVersion()),
		fang.WithCommit(version.Revision),
		fang.WithErrorHandler(cli.ErrorHandler),
	)

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	serr := shutdown(shutdownCtx)
	cancel()

	if serr != nil {
		slog.Error("flush traces", slog.Any("err", serr))
	}

	if err != nil {
		os.Exit(1)
	}
}
