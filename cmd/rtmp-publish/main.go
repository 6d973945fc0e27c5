package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/rtmp-publish/internal/logger"
	"github.com/alxayo/rtmp-publish/internal/rtmp/publish"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	handshakeTimeout, err := time.ParseDuration(cfg.handshakeTimeout)
	if err != nil {
		log.Error("invalid handshake-timeout", "error", err)
		os.Exit(2)
	}
	connectTimeout, err := time.ParseDuration(cfg.connectTimeout)
	if err != nil {
		log.Error("invalid connect-timeout", "error", err)
		os.Exit(2)
	}

	pubCfg := publish.Config{
		ChunkSize:        uint32(cfg.chunkSize),
		WindowAckSize:    uint32(cfg.windowAckSize),
		HandshakeTimeout: handshakeTimeout,
		ConnectTimeout:   connectTimeout,
		Verbose:          cfg.verbose,
	}

	var watcher *publish.ConfigWatcher
	if cfg.configPath != "" {
		w, err := publish.NewConfigWatcher(cfg.configPath, pubCfg)
		if err != nil {
			log.Error("failed to start config watcher", "error", err)
			os.Exit(1)
		}
		watcher = w
		defer watcher.Close()
		audio, video, verbose := watcher.Current()
		pubCfg.AudioQueueCap, pubCfg.VideoQueueCap, pubCfg.Verbose = audio, video, verbose
	}
	if pubCfg.Verbose {
		_ = logger.SetLevel("debug")
	}

	controller := publish.NewController(pubCfg)
	if err := controller.SetServer(cfg.serverURL); err != nil {
		log.Error("invalid server url", "error", err)
		os.Exit(2)
	}

	f, err := os.Open(cfg.framesPath)
	if err != nil {
		log.Error("failed to open frames file", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := controller.StartStreaming(ctx); err != nil {
		log.Error("failed to start streaming", "error", err)
		os.Exit(1)
	}
	log.Info("publishing started", "server", cfg.serverURL, "version", version)

	go logEvents(log, controller)

	sendLoop(ctx, log, controller, f)

	controller.StopStreaming()
	log.Info("publishing stopped", "counters", controller.Counters())
}

// sendLoop reads capturedFrame records from r and hands them to controller
// until EOF, ctx cancellation, or a malformed record is hit.
func sendLoop(ctx context.Context, log interface{ Warn(string, ...any) }, controller *publish.Controller, r io.Reader) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("frames: read error, stopping", "error", err.Error())
			}
			return
		}

		switch frame.kind {
		case frameKindAudio:
			controller.HandleAudioFrame(frame.payload, frame.timestampUs)
		case frameKindVideo:
			controller.HandleVideoFrame(frame.payload, frame.timestampUs, frame.isKey)
		}
	}
}

// logEvents drains controller.Events() until the channel's producer stops
// sending (the controller never closes it, so this goroutine exits only
// when main returns and the process tears down).
func logEvents(log interface{ Info(string, ...any) }, controller *publish.Controller) {
	for ev := range controller.Events() {
		switch ev.Kind {
		case publish.EventAudioConfig:
			log.Info("audio config", "sampling_hz", ev.AudioSamplingHz, "channels", ev.AudioChannels)
		case publish.EventPublishError:
			log.Info("publish error", "kind", ev.ErrKind, "message", ev.ErrMessage)
		case publish.EventCountersChanged:
			log.Info("counters", "audio", ev.Counters.ReceivedAudioFrames, "video", ev.Counters.ReceivedVideoFrames, "dropped", ev.Counters.DroppedFrames, "bytes", ev.Counters.TotalBytesWritten)
		}
	}
}
