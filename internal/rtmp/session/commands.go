package session

import (
	"fmt"
	"time"

	rerrors "github.com/alxayo/rtmp-publish/internal/errors"
	"github.com/alxayo/rtmp-publish/internal/rtmp/amf"
	"github.com/alxayo/rtmp-publish/internal/rtmp/chunk"
	"github.com/alxayo/rtmp-publish/internal/rtmp/control"
)

// sendSetChunkSize emits a Type 1 Set Chunk Size control message on the
// protocol control channel (cs_id 2), immediately after the handshake
// completes, per the publisher spec's connect sequence.
func (s *Session) sendSetChunkSize(size uint32) error {
	return s.writer.WriteMessage(control.EncodeSetChunkSize(size))
}

// sendCommand encodes an AMF0 command and writes it on the command channel
// (cs_id 4), addressed to msid (0 for connect/createStream, the allocated
// stream ID for publish).
func (s *Session) sendCommand(msid uint32, values ...interface{}) error {
	payload, err := amf.EncodeAll(values...)
	if err != nil {
		return rerrors.NewPublishError(rerrors.KindAmfEncodeError, "encode command", err)
	}
	msg := &chunk.Message{
		CSID:            csidCommand,
		TypeID:          commandMessageTypeID,
		MessageStreamID: msid,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
	return s.writer.WriteMessage(msg)
}

// connectCommand sends the connect command with a full AMF0 command object
// (app, type, tcUrl, fpad, capabilities, audio/videoCodecs, flashVer,
// swfUrl, objectEncoding) — the first of the corrections called for in the
// publisher spec's session notes, where the reference implementation this
// package is modeled on sent an impoverished object missing tcUrl/capability
// bits most ingest servers expect. Any control messages the peer interleaves
// with its reply (Window Ack Size, Set Peer Bandwidth, ...) are applied via
// control.Handle before the _result/_error is inspected.
func (s *Session) connectCommand() error {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.ConnectTimeout)); err != nil {
		return s.fail(rerrors.KindConnectFailed, "set connect deadline", err)
	}
	defer func() { _ = s.conn.SetDeadline(time.Time{}) }()

	trx := s.nextTrx()
	tcURL := fmt.Sprintf("rtmp://%s/%s", s.conn.RemoteAddr().String(), s.app)
	cmdObj := map[string]interface{}{
		"app":            s.app,
		"type":           "nonprivate",
		"tcUrl":          tcURL,
		"fpad":           false,
		"capabilities":   15.0,
		"audioCodecs":    4071.0,
		"videoCodecs":    252.0,
		"videoFunction":  1.0,
		"flashVer":       s.cfg.FlashVer,
		"swfUrl":         "",
		"objectEncoding": 0.0,
	}
	if err := s.sendCommand(0, "connect", trx, cmdObj); err != nil {
		return s.fail(rerrors.KindSocketWriteError, "send connect", err)
	}

	name, args, err := s.waitForCommandReply("_result")
	if err != nil {
		return err
	}
	if name == "_error" {
		return s.fail(rerrors.KindHandshakeRejected, describeStatus(args, "NetConnection.Connect.Rejected"), nil)
	}
	return nil
}

// createStreamCommand sends createStream and records the stream ID the
// server allocates, falling back to 1 (the conventional first allocation)
// if the _result payload doesn't carry a usable number — matching the
// fallback the client this package is modeled on used, but only as a last
// resort rather than unconditionally.
func (s *Session) createStreamCommand() error {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.ConnectTimeout)); err != nil {
		return s.fail(rerrors.KindConnectFailed, "set createStream deadline", err)
	}
	defer func() { _ = s.conn.SetDeadline(time.Time{}) }()

	trx := s.nextTrx()
	if err := s.sendCommand(0, "createStream", trx, nil); err != nil {
		return s.fail(rerrors.KindSocketWriteError, "send createStream", err)
	}

	name, args, err := s.waitForCommandReply("_result")
	if err != nil {
		return err
	}
	if name == "_error" {
		return s.fail(rerrors.KindHandshakeRejected, describeStatus(args, "NetConnection.Call.Failed"), nil)
	}
	s.streamID = 1
	if len(args) >= 4 {
		if id, ok := args[3].(float64); ok && id > 0 {
			s.streamID = uint32(id)
		}
	}
	return nil
}

// publishCommand sends the publish command with publishingType "live" on
// the allocated message stream ID and waits for the onStatus/_error reply.
func (s *Session) publishCommand() error {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.ConnectTimeout)); err != nil {
		return s.fail(rerrors.KindConnectFailed, "set publish deadline", err)
	}
	defer func() { _ = s.conn.SetDeadline(time.Time{}) }()

	trx := s.nextTrx()
	if err := s.sendCommand(s.streamID, "publish", trx, nil, s.playPath, "live"); err != nil {
		return s.fail(rerrors.KindSocketWriteError, "send publish", err)
	}

	name, args, err := s.waitForCommandReply("onStatus")
	if err != nil {
		return err
	}
	if name == "_error" {
		return s.fail(rerrors.KindPublishRejected, describeStatus(args, "NetStream.Publish.BadName"), nil)
	}
	if name == "onStatus" {
		if code, ok := statusCode(args); ok && code != "NetStream.Publish.Start" {
			return s.fail(rerrors.KindPublishRejected, code, nil)
		}
	}
	return nil
}

// waitForCommandReply reads messages until it sees one of the given AMF0
// command names (plus the universal "_error"), applying any interleaved
// control messages along the way via control.Handle.
func (s *Session) waitForCommandReply(accept ...string) (string, []interface{}, error) {
	ctx := s.controlContext()
	for {
		msg, err := s.reader.ReadMessage()
		if err != nil {
			if rerrors.IsTimeout(err) {
				return "", nil, s.fail(rerrors.KindHandshakeTimeout, "waiting for command reply", err)
			}
			return "", nil, s.fail(rerrors.KindConnectFailed, "read command reply", err)
		}

		if msg.TypeID >= control.TypeSetChunkSize && msg.TypeID <= control.TypeSetPeerBandwidth && msg.MessageStreamID == 0 {
			_ = control.Handle(ctx, msg)
			continue
		}
		if msg.TypeID != commandMessageTypeID {
			continue
		}

		args, err := amf.DecodeAll(msg.Payload)
		if err != nil || len(args) == 0 {
			continue
		}
		name, ok := args[0].(string)
		if !ok {
			continue
		}
		if name == "_error" {
			return name, args, nil
		}
		for _, want := range accept {
			if name == want {
				return name, args, nil
			}
		}
	}
}

// describeStatus extracts a human-readable status code/description from an
// AMF0 _error/onStatus reply's info object, falling back to def.
func describeStatus(args []interface{}, def string) string {
	if code, ok := statusCode(args); ok {
		return code
	}
	return def
}

func statusCode(args []interface{}) (string, bool) {
	for _, a := range args {
		obj, ok := a.(map[string]interface{})
		if !ok {
			continue
		}
		if code, ok := obj["code"].(string); ok {
			return code, true
		}
	}
	return "", false
}
