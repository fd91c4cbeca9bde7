package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"lockbox/internal/app"
	"lockbox/pkg/contracts"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	syncNow := flag.Bool("sync-now", false, "perform a single license sync and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.VersionString())
		return
	}

	agent, err := app.NewAgentApplication()
	if err != nil {
		slog.Error("failed to initialize license agent", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *syncNow {
		if err := agent.SyncOnce(context.Background()); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := agent.Run(); err != nil {
		slog.Error("license agent error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
