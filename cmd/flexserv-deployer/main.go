// flexserv-deployer provisions and manages model-serving pods on a Tapis
// tenant, exposing the lifecycle over a small JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

// version is set by the build.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("flexserv-deployer " + version)
		os.Exit(ExitSuccess)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(ExitConfigError)
	}

	logger := SetupLogger(cfg)
	logger.Info("starting flexserv-deployer",
		"version", version,
		"tenant", cfg.Tapis.TenantURL,
	)

	os.Exit(run(cfg, logger))
}

func run(cfg *Config, logger *slog.Logger) int {
	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitCode(err)
	}

	if err := server.Start(context.Background()); err != nil {
		logger.Error("server stopped", "error", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// exitCode extracts the exit code a ServerError carries; anything else is
// treated as a configuration problem.
func exitCode(err error) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}
