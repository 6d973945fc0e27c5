// Package publish implements the user-facing façade of the RTMP publisher:
// StreamController parses the target server URL, owns the publisher
// goroutine and the MediaMuxer, and exposes read-only counters plus a typed
// event stream, replacing the original's Qt-style signal/slot wiring.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	rerrors "github.com/alxayo/rtmp-publish/internal/errors"
	"github.com/alxayo/rtmp-publish/internal/logger"
	"github.com/alxayo/rtmp-publish/internal/rtmp/media"
	"github.com/alxayo/rtmp-publish/internal/rtmp/queue"
	"github.com/alxayo/rtmp-publish/internal/rtmp/session"
)

// Controller is the StreamController of the original spec (§4.5): the
// capture caller's entry point for feeding encoded frames in, and the UI's
// entry point for start/stop and counter reads. It exclusively owns the
// publisher goroutine and the Muxer; the FrameQueue is shared with exactly
// that goroutine, per the ownership rules in §3 of the expanded spec.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	tgt      target
	haveTgt  bool
	muxer    *media.Muxer
	q        *queue.FrameQueue
	sess     *session.Session
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	events   chan Event

	audioConfigSent bool

	streaming atomic.Bool
	errStop   atomic.Bool // set once a fatal error has been surfaced, so further capture calls no-op
}

// NewController builds a Controller with cfg's defaults applied. The
// returned Controller is Idle until SetServer and StartStreaming are called.
func NewController(cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:    cfg,
		events: make(chan Event, 32),
	}
}

// Events returns the channel on which AudioConfig/PublishError/CountersChanged
// events are delivered. The channel is never closed by the Controller;
// callers should stop reading once they are done with the Controller.
func (c *Controller) Events() <-chan Event { return c.events }

// SetServer parses rawURL (rtmp://host[:port]/app/playPath, with http(s)
// normalised to rtmp and an implicit scheme accepted) and stores the parsed
// target for the next StartStreaming call. It does not dial.
func (c *Controller) SetServer(rawURL string) error {
	t, err := parseServerURL(rawURL)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tgt = t
	c.haveTgt = true
	c.mu.Unlock()
	return nil
}

// IsStreaming reports whether the publisher goroutine is currently active.
func (c *Controller) IsStreaming() bool { return c.streaming.Load() }

// StartStreaming resets counters, spawns the publisher goroutine (which
// drives handshake → connect → publish → steady state over the target set
// by SetServer), and returns once the goroutine has been launched — it does
// not block for the connection to complete (the caller observes progress
// via Events()/Counters()). Returns an error if no server was set or if
// already streaming.
func (c *Controller) StartStreaming(ctx context.Context) error {
	c.mu.Lock()
	if !c.haveTgt {
		c.mu.Unlock()
		return rerrors.NewUrlError("publish.start", errors.New("no server set"))
	}
	if c.streaming.Load() {
		c.mu.Unlock()
		return fmt.Errorf("publish: already streaming")
	}
	tgt := c.tgt
	c.muxer = media.NewMuxer()
	c.q = queue.New(c.cfg.AudioQueueCap, c.cfg.VideoQueueCap)
	c.errStop.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	sessionID := uuid.NewString()
	sess := session.New(c.cfg.sessionConfig(), tgt.app, tgt.playPath, sessionID)

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.streaming.Store(true)
	c.wg.Add(1)
	go c.runPublisher(runCtx, sess, tgt.addr())
	return nil
}

// runPublisher is the publisher goroutine: dial+handshake+connect+publish,
// then drain the frame queue until stopped or a fatal error occurs.
func (c *Controller) runPublisher(ctx context.Context, sess *session.Session, addr string) {
	defer c.wg.Done()
	defer c.streaming.Store(false)
	defer func() { _ = sess.Close() }()

	if err := sess.Connect(ctx, addr); err != nil {
		c.surfaceFatal(err)
		return
	}
	c.emitCounters()

	if err := sess.Run(ctx, c.q); err != nil {
		c.surfaceFatal(err)
		return
	}
	c.emitCounters()
}

// StopStreaming requests the publisher goroutine to stop: it cancels the
// run context (unblocking any in-flight socket syscall on its next check)
// and stops the frame queue (broadcasting any blocked Take). It waits for
// the goroutine to finish before returning, matching "the publisher
// finishes the current chunk, closes the socket, and signals finished."
func (c *Controller) StopStreaming() {
	c.mu.Lock()
	cancel := c.cancel
	q := c.q
	c.mu.Unlock()

	if q != nil {
		q.Stop()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// HandleAudioFrame routes a raw ADTS frame from the capture source to the
// Muxer and posts the resulting MediaFrame(s) to the queue. It is a no-op if
// not currently streaming (including after a fatal publish error), per
// §4.5's "If not streaming, drop." buf is not retained past this call.
func (c *Controller) HandleAudioFrame(buf []byte, timestampUs int64) {
	if !c.streaming.Load() || c.errStop.Load() {
		return
	}
	c.mu.Lock()
	muxer, q := c.muxer, c.q
	c.mu.Unlock()
	if muxer == nil || q == nil {
		return
	}

	frames, err := muxer.HandleAudioFrame(buf, timestampUs)
	if err != nil {
		logger.Logger().Warn("dropping audio frame", "error", err)
		return
	}
	for _, f := range frames {
		q.Post(f)
	}
	if cfg := muxer.AudioConfig(); cfg != nil {
		c.maybeEmitAudioConfig(*cfg)
	}
	c.emitCounters()
}

// HandleVideoFrame routes a raw H.264 Annex-B buffer from the capture
// source to the Muxer and posts the resulting MediaFrame(s) to the queue.
// isKey indicates whether buf is a keyframe carrying the SPS/PPS prelude.
// It is a no-op if not currently streaming. A MissingSpsPps parse error
// (video arriving before any keyframe has primed the session) is logged and
// the frame dropped, per §7's parsing-error policy.
func (c *Controller) HandleVideoFrame(buf []byte, timestampUs int64, isKey bool) {
	if !c.streaming.Load() || c.errStop.Load() {
		return
	}
	c.mu.Lock()
	muxer, q := c.muxer, c.q
	c.mu.Unlock()
	if muxer == nil || q == nil {
		return
	}

	frames, err := muxer.HandleVideoFrame(buf, timestampUs, isKey)
	if err != nil {
		logger.Logger().Warn("dropping video frame", "error", err)
		return
	}
	for _, f := range frames {
		q.Post(f)
	}
	c.emitCounters()
}

func (c *Controller) maybeEmitAudioConfig(cfg media.AudioConfig) {
	c.mu.Lock()
	already := c.audioConfigSent
	c.audioConfigSent = true
	c.mu.Unlock()
	if already {
		return
	}
	// AudioBitrate is not derivable from the ADTS header (it describes the
	// encoder's configured rate, not the bitstream); left zero until a
	// capture-side encoder configuration API is wired in.
	c.emit(Event{
		Kind:            EventAudioConfig,
		AudioSamplingHz: cfg.SamplingRateHz,
		AudioChannels:   cfg.ChannelCount,
	})
}

// Counters returns a snapshot of the publish session's progress counters,
// safe to call from any goroutine (§4.5's read-only counters contract).
func (c *Controller) Counters() Counters {
	c.mu.Lock()
	q, sess := c.q, c.sess
	c.mu.Unlock()

	var cnt Counters
	cnt.IsStreaming = c.streaming.Load()
	if q != nil {
		st := q.Stats()
		cnt.ReceivedAudioFrames = st.ReceivedAudio
		cnt.ReceivedVideoFrames = st.ReceivedVideo
		cnt.DroppedFrames = st.Dropped
	}
	if sess != nil {
		cnt.TotalBytesWritten = sess.BytesWritten()
	}
	return cnt
}

func (c *Controller) emitCounters() {
	c.emit(Event{Kind: EventCountersChanged, Counters: c.Counters()})
}

// surfaceFatal is called by the publisher goroutine when RtmpSession
// returns a fatal error: isStreaming drops to false (already handled by the
// deferred streaming.Store(false) in runPublisher), the error is delivered
// exactly once, and subsequent capture callbacks become no-ops until the
// next StartStreaming (§7's "the controller treats repeated capture
// callbacks after an error as no-ops").
func (c *Controller) surfaceFatal(err error) {
	c.errStop.Store(true)
	var pe *rerrors.PublishError
	kind, msg := "Unknown", err.Error()
	if errors.As(err, &pe) {
		kind, msg = string(pe.Kind), pe.Message
	}
	logger.Logger().Error("publish session failed", "kind", kind, "message", msg, "error", err)
	c.emit(Event{Kind: EventPublishError, ErrKind: kind, ErrMessage: msg})
	c.emitCounters()
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// Slow/absent consumer: drop rather than block the publisher
		// goroutine, matching the queue's own backpressure-by-dropping
		// philosophy rather than ever stalling the network writer.
	}
}
