// Package session drives a single outbound RTMP connection through
// handshake, command exchange, and steady-state audio/video delivery. It is
// the client-side counterpart to the teacher's internal/rtmp/conn package:
// where that package reassembles and dispatches messages arriving from a
// publisher, this one emits them toward a remote ingest server.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	rerrors "github.com/alxayo/rtmp-publish/internal/errors"
	"github.com/alxayo/rtmp-publish/internal/logger"
	"github.com/alxayo/rtmp-publish/internal/rtmp/chunk"
	"github.com/alxayo/rtmp-publish/internal/rtmp/control"
	"github.com/alxayo/rtmp-publish/internal/rtmp/handshake"
	"github.com/alxayo/rtmp-publish/internal/rtmp/queue"
)

func stdErrIsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// State enumerates the lifecycle of a Session. Transitions are strictly
// monotone except that any state may move to StateError or StateStopped.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateConnected
	StatePublishing
	StateStreaming
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StatePublishing:
		return "publishing"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Chunk stream IDs used by this publisher's wire layout: 2 is the reserved
// RTMP protocol-control channel (see internal/rtmp/control), 4 carries AMF0
// command messages, 8 audio, 9 video.
const (
	csidControl = 2
	csidCommand = 4
	csidAudio   = 8
	csidVideo   = 9
)

const commandMessageTypeID uint8 = 20

// Config carries the subset of publish.Config a Session needs; it is
// duplicated here (rather than importing the publish package) to avoid an
// import cycle between session and publish.
type Config struct {
	ChunkSize        uint32
	HandshakeTimeout time.Duration
	ConnectTimeout   time.Duration
	WindowAckSize    uint32
	FlashVer         string
}

// DefaultConfig mirrors publish.Config's defaults so a Session built
// directly in tests behaves like production.
func DefaultConfig() Config {
	return Config{
		ChunkSize:        4096,
		HandshakeTimeout: 2 * time.Minute,
		ConnectTimeout:   30 * time.Second,
		WindowAckSize:    2_500_000,
		FlashVer:         "LNX 9,0,124,2",
	}
}

// Session owns one TCP connection and drives it through the RTMP publish
// flow. It is not safe for concurrent use; the publisher goroutine is its
// sole owner, matching the teacher's one-writer-per-connection discipline.
type Session struct {
	cfg       Config
	app       string
	playPath  string
	sessionID string

	conn   net.Conn
	writer *chunk.Writer
	reader *chunk.Reader

	streamID uint32

	stateMu sync.Mutex
	state   State

	trxMu sync.Mutex
	trxID float64

	lastTimestampMs map[uint32]int64

	bytesReadSinceAck uint32
	windowAckSize     uint32 // our own window ack size, advertised to the peer
	readChunkSize     uint32
	peerWindowAck     uint32
	peerBandwidth     uint32
	peerLimitType     uint8
	lastPeerAck       uint32

	bytesWritten uint64 // total bytes handed to the socket, atomics-protected

	lastErr error
	log     *slog.Logger
}

// countingWriter wraps net.Conn's Write so the session can report the total
// byte count handed to the socket without threading a counter through
// chunk.Writer itself (§8 invariant 6: total bytes written == bytes reported
// to the counters event).
type countingWriter struct {
	net.Conn
	n *uint64
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.Conn.Write(p)
	atomic.AddUint64(cw.n, uint64(n))
	return n, err
}

// BytesWritten returns the total number of bytes written to the socket so
// far. Safe to call from any goroutine.
func (s *Session) BytesWritten() uint64 {
	return atomic.LoadUint64(&s.bytesWritten)
}

// New creates a Session for the given application/playPath pair (already
// parsed out of the target rtmp:// URL by the publish package). sessionID is
// a uuid.NewString() value assigned once per Connect() attempt so every log
// line for this attempt can be correlated.
func New(cfg Config, app, playPath, sessionID string) *Session {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 4096
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 2 * time.Minute
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.WindowAckSize == 0 {
		cfg.WindowAckSize = 2_500_000
	}
	return &Session{
		cfg:             cfg,
		app:             app,
		playPath:        playPath,
		sessionID:       sessionID,
		state:           StateIdle,
		lastTimestampMs: make(map[uint32]int64),
		windowAckSize:   cfg.WindowAckSize,
		readChunkSize:   128,
		log:             logger.WithSession(logger.WithPublishTarget(logger.Logger(), app, playPath), sessionID),
	}
}

// State returns the current session state. Safe to call from any goroutine.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// nextTrx returns the next monotone AMF0 transaction ID.
func (s *Session) nextTrx() float64 {
	s.trxMu.Lock()
	defer s.trxMu.Unlock()
	s.trxID++
	return s.trxID
}

// Connect dials addr (host:port), performs the RTMP simple handshake, sets
// the outbound chunk size, and sends connect/createStream/publish, draining
// and inspecting the server's replies after each. On any failure it returns
// a *rerrors.PublishError with a Kind drawn from the fatal-error taxonomy
// and transitions to StateError.
func (s *Session) Connect(ctx context.Context, addr string) error {
	s.setState(StateConnecting)

	d := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.setState(StateError)
		return rerrors.NewPublishError(rerrors.KindConnectFailed, fmt.Sprintf("dial %s", addr), err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Disable Nagle: the publisher spec requires the low-delay socket
		// option so audio/video messages aren't held back waiting to coalesce.
		_ = tc.SetNoDelay(true)
	}
	s.conn = conn
	s.writer = chunk.NewWriter(countingWriter{Conn: conn, n: &s.bytesWritten}, 128)
	s.reader = chunk.NewReader(conn, 128)

	s.setState(StateHandshaking)
	if err := conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return s.fail(rerrors.KindConnectFailed, "set handshake deadline", err)
	}
	if err := handshake.ClientHandshake(conn); err != nil {
		_ = conn.Close()
		s.setState(StateError)
		if rerrors.IsTimeout(err) {
			return rerrors.NewPublishError(rerrors.KindHandshakeTimeout, "handshake", err)
		}
		return rerrors.NewPublishError(rerrors.KindConnectFailed, "handshake", err)
	}
	_ = conn.SetDeadline(time.Time{})

	s.setState(StateConnected)

	if err := s.sendSetChunkSize(s.cfg.ChunkSize); err != nil {
		return s.fail(rerrors.KindSocketWriteError, "set chunk size", err)
	}
	s.writer.SetChunkSize(s.cfg.ChunkSize)

	if err := s.connectCommand(); err != nil {
		return err
	}
	if err := s.createStreamCommand(); err != nil {
		return err
	}

	s.setState(StatePublishing)
	if err := s.publishCommand(); err != nil {
		return err
	}

	s.setState(StateStreaming)
	s.log.Info("publish session streaming")
	return nil
}

func (s *Session) fail(kind rerrors.PublishKind, msg string, cause error) error {
	s.setState(StateError)
	err := rerrors.NewPublishError(kind, msg, cause)
	s.lastErr = err
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return err
}

// Close releases the underlying connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Run drains frames from q and writes them to the wire until ctx is
// cancelled, q is stopped, or a fatal transport error occurs. It is the
// publisher goroutine's steady-state loop.
func (s *Session) Run(ctx context.Context, q *queue.FrameQueue) error {
	for {
		frame, err := q.Take(ctx)
		if err != nil {
			return nil // queue stopped or ctx cancelled: cooperative shutdown, not an error
		}
		if frame.Kind == queue.FrameEOS {
			return nil
		}

		if err := s.sendFrame(frame); err != nil {
			return s.fail(rerrors.KindSocketWriteError, "send frame", err)
		}

		if err := s.drainOnce(); err != nil {
			var pe *rerrors.PublishError
			if errors.As(err, &pe) {
				return s.fail(pe.Kind, pe.Message, pe.Err)
			}
			return s.fail(kindForDrainError(err), "drain", err)
		}
	}
}

func (s *Session) sendFrame(frame queue.MediaFrame) error {
	switch frame.Kind {
	case queue.FrameAudio:
		return s.writeOnChannel(csidAudio, 8, frame.Payload, frame.DTS)
	case queue.FrameVideo:
		return s.writeOnChannel(csidVideo, 9, frame.Payload, frame.DTS)
	default:
		return nil
	}
}

// writeOnChannel clamps dtsMs to be non-decreasing per csid (consecutive
// deltas on the same cs_id are never negative) before handing the message
// to the chunk writer, since chunk.Writer itself performs plain unsigned
// subtraction and would wrap on a negative delta.
func (s *Session) writeOnChannel(csid uint32, typeID uint8, payload []byte, dtsMs int64) error {
	ms := dtsMs
	if last, ok := s.lastTimestampMs[csid]; ok && ms < last {
		ms = last
	}
	s.lastTimestampMs[csid] = ms

	msg := &chunk.Message{
		CSID:            csid,
		Timestamp:       uint32(ms),
		TypeID:          typeID,
		MessageStreamID: s.streamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
	return s.writer.WriteMessage(msg)
}

// kindForDrainError classifies an error surfaced while draining the inbound
// socket during steady-state streaming (§7 of the publisher spec).
func kindForDrainError(err error) rerrors.PublishKind {
	if rerrors.IsTimeout(err) {
		return rerrors.KindSocketReadError
	}
	if stdErrIsEOF(err) {
		return rerrors.KindRemoteClosed
	}
	return rerrors.KindSocketReadError
}

// controlContext builds a control.Context bound to this session's mutable
// protocol-control state, so the same control.Decode/control.Handle pair the
// teacher's server uses to process inbound control messages can be reused
// here on the client side.
func (s *Session) controlContext() *control.Context {
	return &control.Context{
		ReadChunkSize: &s.readChunkSize,
		WindowAckSize: &s.peerWindowAck,
		PeerBandwidth: &s.peerBandwidth,
		LimitType:     &s.peerLimitType,
		LastPeerAck:   &s.lastPeerAck,
		Log:           s.log,
		Send: func(msg *chunk.Message) error {
			return s.writer.WriteMessage(msg)
		},
	}
}
