// Command spectrald runs the spectral daemon: the public HTTP API plus the
// background enhancement workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"spectral/internal/config"
	"spectral/internal/daemon"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemon.Run(context.Background(), cfg, daemon.Options{LogLevel: *logLevel}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
