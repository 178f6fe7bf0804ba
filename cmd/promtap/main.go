package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"promtap/internal/app"
)

const (
	exitCodeFailure = 1
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// run starts one tap process.
// Params: none.
// Returns: process exit code.
func run() int {
	var (
		configPath string
		statePath  string
		selectList string
		discover   bool
		showInfo   bool
	)

	flag.StringVar(&configPath, "config", "config.toml", "path to TOML config file or directory")
	flag.StringVar(&statePath, "state", "", "path to durable bookmark state file")
	flag.StringVar(&selectList, "select", "", "comma-separated stream patterns to extract ('*' wildcards)")
	flag.BoolVar(&discover, "discover", false, "print the stream catalog and exit")
	flag.BoolVar(&showInfo, "v", false, "show build information")
	flag.BoolVar(&showInfo, "version", false, "show build information")
	flag.Parse()

	if showInfo {
		fmt.Printf("promtap version=%s commit=%s date=%s\n", version, commit, date)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := app.Runtime{
		ConfigPath: configPath,
		StatePath:  statePath,
		Discover:   discover,
		Stdout:     os.Stdout,
	}
	if trimmed := strings.TrimSpace(selectList); trimmed != "" {
		rt.Select = strings.Split(trimmed, ",")
	}

	if err := app.Run(ctx, rt); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCodeFailure
	}

	return 0
}

func main() {
	os.Exit(run())
}
