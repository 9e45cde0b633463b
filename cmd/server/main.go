// Package main is the entry point for the bbs1ctl API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/bbs1ctl/pkg/api"
	"github.com/james-see/bbs1ctl/pkg/config"
	"github.com/james-see/bbs1ctl/pkg/logging"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "bbs1ctl.yaml", "Config file path")
	port := flag.String("port", "", "Server port (overrides config)")
	simulate := flag.Bool("simulate", false, "Serve a simulated device")
	flag.Parse()

	if err := run(*configFile, *port, *simulate); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// run serves until the listener fails. The MIDI driver is closed and the
// logger flushed on every return.
func run(configFile, port string, simulate bool) error {
	defer midi.CloseDriver()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.ServerPort = port
	}
	if simulate {
		cfg.Simulate = true
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bbs1ctl API server",
		zap.String("port", cfg.ServerPort),
		zap.Bool("simulate", cfg.Simulate))
	fmt.Printf("Swagger docs available at http://localhost:%s/swagger/index.html\n", cfg.ServerPort)

	err = api.StartServer(cfg.ServerPort, cfg.Opener(logger),
		api.WithLogger(logger),
		api.WithSessionOptions(cfg.SessionOptions(logger)...),
		api.WithDecodeOptions(cfg.DecodeOptions(logger)...))
	if err != nil {
		logger.Error("server error", zap.Error(err))
	}
	return err
}
