package publish

import (
	"time"

	"github.com/alxayo/rtmp-publish/internal/rtmp/queue"
	"github.com/alxayo/rtmp-publish/internal/rtmp/session"
)

// Config carries the knobs the original C++ publisher kept as mutable
// globals and compile-time toggles (VERBOSE, the 4096-byte output chunk
// size, the queue caps) as a single record threaded through construction,
// following the same applyDefaults-on-zero-value pattern the teacher's
// server.Config uses.
type Config struct {
	ChunkSize        uint32 // initial outbound chunk size, raised via Set Chunk Size after handshake
	HandshakeTimeout time.Duration
	ConnectTimeout   time.Duration
	WindowAckSize    uint32
	Verbose          bool
	FlashVer         string
	AudioQueueCap    int // MAX_QUEUE_SIZE*2 per the original FrameQueueState invariant
	VideoQueueCap    int // MAX_QUEUE_SIZE
}

// applyDefaults fills zero-valued fields with the publisher's production
// defaults, mirroring server.Config.applyDefaults in the teacher package.
func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 4096
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 2 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = 2_500_000
	}
	if c.FlashVer == "" {
		c.FlashVer = "LNX 9,0,124,2"
	}
	if c.AudioQueueCap == 0 {
		c.AudioQueueCap = queue.DefaultAudioCap
	}
	if c.VideoQueueCap == 0 {
		c.VideoQueueCap = queue.DefaultVideoCap
	}
}

// sessionConfig narrows Config to the subset session.Config needs, so the
// session package never has to import publish (which would create a cycle
// since publish imports session).
func (c Config) sessionConfig() session.Config {
	return session.Config{
		ChunkSize:        c.ChunkSize,
		HandshakeTimeout: c.HandshakeTimeout,
		ConnectTimeout:   c.ConnectTimeout,
		WindowAckSize:    c.WindowAckSize,
		FlashVer:         c.FlashVer,
	}
}

// DefaultConfig returns a Config with every field set to its production
// default, for callers that want to override only a couple of fields.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}
