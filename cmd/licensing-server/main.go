package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"lockbox/internal/app"
	"lockbox/pkg/contracts"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.VersionString())
		return
	}

	application, err := app.NewServerApplication()
	if err != nil {
		slog.Error("failed to initialize licensing server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("licensing server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
