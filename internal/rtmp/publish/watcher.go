package publish

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/alxayo/rtmp-publish/internal/logger"
	"github.com/alxayo/rtmp-publish/internal/rtmp/queue"
)

// reloadable is the subset of Config the publisher spec allows to change
// between sessions (§3.3 of the expanded spec): queue caps and the verbose
// toggle. ChunkSize/timeouts/WindowAckSize are fixed once a Session dials,
// so they are intentionally excluded here.
type reloadable struct {
	AudioQueueCap int
	VideoQueueCap int
	Verbose       bool
}

// ConfigWatcher watches an optional key=value config file (one "key=value"
// pair per line; recognised keys are audio_queue_cap, video_queue_cap,
// verbose) and keeps the latest parsed values behind an atomic pointer swap,
// read back through Current() (it does not modify any Config itself),
// the same file-watch-then-apply shape the teacher's nested azure modules
// use fsnotify for, generalised here to the publisher's own config surface.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	current atomic.Pointer[reloadable]
	done    chan struct{}
}

// NewConfigWatcher starts watching path for changes, seeding the initial
// reloadable fields from cfg. If path is empty, no filesystem watch is
// started and the watcher just serves the seeded values.
func NewConfigWatcher(path string, cfg Config) (*ConfigWatcher, error) {
	w := &ConfigWatcher{path: path, done: make(chan struct{})}
	w.current.Store(&reloadable{
		AudioQueueCap: cfg.AudioQueueCap,
		VideoQueueCap: cfg.VideoQueueCap,
		Verbose:       cfg.Verbose,
	})
	if path == "" {
		return w, nil
	}

	if r, err := loadReloadable(path); err == nil {
		w.current.Store(r)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.watcher = fw
	go w.run()
	return w, nil
}

func (w *ConfigWatcher) run() {
	log := logger.Logger().With("component", "config_watcher", "path", w.path)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r, err := loadReloadable(w.path)
			if err != nil {
				log.Warn("reload config failed", "error", err)
				continue
			}
			w.current.Store(r)
			log.Info("config reloaded", "audio_queue_cap", r.AudioQueueCap, "video_queue_cap", r.VideoQueueCap, "verbose", r.Verbose)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Current returns the most recently applied reloadable fields.
func (w *ConfigWatcher) Current() (audioQueueCap, videoQueueCap int, verbose bool) {
	r := w.current.Load()
	return r.AudioQueueCap, r.VideoQueueCap, r.Verbose
}

// Close stops the filesystem watch. Safe to call even if no watch was
// started (empty path).
func (w *ConfigWatcher) Close() error {
	close(w.done)
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func loadReloadable(path string) (*reloadable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := &reloadable{
		AudioQueueCap: queue.DefaultAudioCap,
		VideoQueueCap: queue.DefaultVideoCap,
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "audio_queue_cap":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				r.AudioQueueCap = n
			}
		case "video_queue_cap":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				r.VideoQueueCap = n
			}
		case "verbose":
			if b, err := strconv.ParseBool(val); err == nil {
				r.Verbose = b
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return r, nil
}
