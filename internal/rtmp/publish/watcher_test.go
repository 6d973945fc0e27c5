package publish

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcher_NoPath(t *testing.T) {
	w, err := NewConfigWatcher("", DefaultConfig())
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}
	defer w.Close()

	audio, video, verbose := w.Current()
	cfg := DefaultConfig()
	if audio != cfg.AudioQueueCap || video != cfg.VideoQueueCap || verbose != cfg.Verbose {
		t.Fatalf("Current() = (%d,%d,%v), want seeded config defaults", audio, video, verbose)
	}
}

func TestConfigWatcher_InitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publish.conf")
	if err := os.WriteFile(path, []byte("audio_queue_cap=64\nvideo_queue_cap=32\nverbose=true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewConfigWatcher(path, DefaultConfig())
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}
	defer w.Close()

	audio, video, verbose := w.Current()
	if audio != 64 || video != 32 || !verbose {
		t.Fatalf("Current() = (%d,%d,%v), want (64,32,true)", audio, video, verbose)
	}
}

func TestConfigWatcher_ReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publish.conf")
	if err := os.WriteFile(path, []byte("audio_queue_cap=10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewConfigWatcher(path, DefaultConfig())
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}
	defer w.Close()

	if audio, _, _ := w.Current(); audio != 10 {
		t.Fatalf("initial audio_queue_cap = %d, want 10", audio)
	}

	if err := os.WriteFile(path, []byte("audio_queue_cap=20\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if audio, _, _ := w.Current(); audio == 20 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("config reload did not observe audio_queue_cap=20 in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConfigWatcher_MalformedLinesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publish.conf")
	content := "# comment\naudio_queue_cap=not-a-number\nvideo_queue_cap=48\nbogus_key=1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewConfigWatcher(path, DefaultConfig())
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}
	defer w.Close()

	audio, video, _ := w.Current()
	if audio != queueDefaultAudioCapForTest() {
		t.Fatalf("malformed audio_queue_cap should fall back to default, got %d", audio)
	}
	if video != 48 {
		t.Fatalf("video_queue_cap = %d, want 48", video)
	}
}

func queueDefaultAudioCapForTest() int {
	cfg := DefaultConfig()
	return cfg.AudioQueueCap
}
