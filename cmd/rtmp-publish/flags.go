package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// publish.Config, mirroring the teacher's cmd/rtmp-server/flags.go split
// between flag parsing/validation and server construction.
type cliConfig struct {
	serverURL        string
	framesPath       string
	logLevel         string
	chunkSize        uint
	windowAckSize    uint
	handshakeTimeout string
	connectTimeout   string
	verbose          bool
	configPath       string
	showVersion      bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("rtmp-publish", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.serverURL, "server", "", "RTMP destination URL (rtmp://host[:port]/app/playPath)")
	fs.StringVar(&cfg.framesPath, "frames", "", "Path to a recorded ADTS+Annex-B frame file to publish")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.UintVar(&cfg.chunkSize, "chunk-size", 4096, "Initial outbound chunk size")
	fs.UintVar(&cfg.windowAckSize, "window-ack-size", 2_500_000, "Window Acknowledgement Size advertised to the peer")
	fs.StringVar(&cfg.handshakeTimeout, "handshake-timeout", "2m", "Deadline for the RTMP handshake")
	fs.StringVar(&cfg.connectTimeout, "connect-timeout", "30s", "Deadline for dial/connect/createStream/publish")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Enable verbose (debug-level) logging")
	fs.StringVar(&cfg.configPath, "config", "", "Optional key=value config file to hot-reload (audio_queue_cap, video_queue_cap, verbose)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}

	if cfg.serverURL == "" {
		return nil, errors.New("-server is required")
	}
	if cfg.framesPath == "" {
		return nil, errors.New("-frames is required")
	}
	if cfg.chunkSize == 0 || cfg.chunkSize > 65536 {
		return nil, errors.New("chunk-size must be between 1 and 65536")
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	return cfg, nil
}
